package interact

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Transform is a pan/zoom: screen = world*K + (X, Y).
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K float64 `json:"k"`
}

// Identity is the untransformed view.
var Identity = Transform{K: 1}

// Apply maps a point into transformed space.
func (t Transform) Apply(p r2.Vec) r2.Vec {
	return r2.Vec{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

// Invert maps a transformed point back.
func (t Transform) Invert(p r2.Vec) r2.Vec {
	return r2.Vec{X: (p.X - t.X) / t.K, Y: (p.Y - t.Y) / t.K}
}

// TranslateBy pans by a screen-space offset.
func (t Transform) TranslateBy(d r2.Vec) Transform {
	return Transform{X: t.X + d.X, Y: t.Y + d.Y, K: t.K}
}

// ScaleAround returns t rescaled to k while keeping anchor fixed on screen.
func (t Transform) ScaleAround(k float64, anchor r2.Vec) Transform {
	w := t.Invert(anchor)
	return Transform{X: anchor.X - w.X*k, Y: anchor.Y - w.Y*k, K: k}
}

// IsIdentity reports whether t is exactly the identity.
func (t Transform) IsIdentity() bool {
	return t == Identity
}

// Valid reports whether every component is finite and the scale positive.
func (t Transform) Valid() bool {
	for _, v := range [...]float64{t.X, t.Y, t.K} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return t.K > 0
}

// Surface is the bounding box of the rendering surface in screen space.
type Surface struct {
	Left, Top     float64
	Width, Height float64
}

// Min is the surface's top-left corner.
func (s Surface) Min() r2.Vec {
	return r2.Vec{X: s.Left, Y: s.Top}
}

// Center is the surface midpoint relative to its own corner.
func (s Surface) Center() r2.Vec {
	return r2.Vec{X: s.Width / 2, Y: s.Height / 2}
}

// Local converts a screen point to surface pixel space.
func (s Surface) Local(screen r2.Vec) r2.Vec {
	return r2.Sub(screen, s.Min())
}

// ToWorld inverts a screen point into simulation space, whose origin sits at
// the surface centre.
func ToWorld(screen r2.Vec, s Surface, t Transform) r2.Vec {
	return r2.Sub(t.Invert(s.Local(screen)), s.Center())
}

// ToScreen is the inverse of ToWorld.
func ToScreen(world r2.Vec, s Surface, t Transform) r2.Vec {
	return r2.Add(t.Apply(r2.Add(world, s.Center())), s.Min())
}
