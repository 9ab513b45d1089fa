package interact

import (
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// wheelFactor converts wheel delta into a power-of-two zoom step.
	wheelFactor = 0.002

	resetFrequency = 8.0
	resetDamping   = 1.0
	resetEpsilon   = 1e-3
)

// resetFrameMsg advances the reset animation with the given id.
type resetFrameMsg struct {
	id int
}

// Zoom owns the pan/zoom transform. It works in surface pixel space: every
// position passed in is relative to the surface's top-left corner.
type Zoom struct {
	t          Transform
	minK, maxK float64
	onChange   func(Transform)

	panning bool
	panID   int
	last    r2.Vec

	touches map[int]r2.Vec

	fps       int
	spring    harmonica.Spring
	animID    int
	animating bool
	frames    int
	vel       Transform
}

// NewZoom returns an identity zoom clamped to [minK, maxK] whose reset
// animation runs at fps frames per second.
func NewZoom(minK, maxK float64, fps int) *Zoom {
	if fps <= 0 {
		fps = 60
	}
	if minK <= 0 {
		minK = 1e-3
	}
	if maxK < minK {
		maxK = minK
	}
	return &Zoom{
		t:       Identity,
		minK:    minK,
		maxK:    maxK,
		touches: make(map[int]r2.Vec),
		fps:     fps,
		spring:  harmonica.NewSpring(harmonica.FPS(fps), resetFrequency, resetDamping),
	}
}

// Transform returns the current transform.
func (z *Zoom) Transform() Transform {
	return z.t
}

// OnChange registers fn to receive every transform change.
func (z *Zoom) OnChange(fn func(Transform)) {
	z.onChange = fn
}

// Active reports whether a pan or pinch is in progress.
func (z *Zoom) Active() bool {
	return z.panning || len(z.touches) > 0
}

// Animating reports whether a reset transition is running.
func (z *Zoom) Animating() bool {
	return z.animating
}

func (z *Zoom) set(t Transform) {
	if !t.Valid() || t == z.t {
		return
	}
	z.t = t
	if z.onChange != nil {
		z.onChange(t)
	}
}

func (z *Zoom) clamp(k float64) float64 {
	return math.Max(z.minK, math.Min(z.maxK, k))
}

// Start begins a pan for a mouse, or tracks a touch. A second touch turns the
// gesture into a pinch.
func (z *Zoom) Start(m PointerMsg, local r2.Vec) {
	z.interrupt()
	if m.Kind == Touch {
		z.touches[m.ID] = local
		return
	}
	z.panning = true
	z.panID = m.ID
	z.last = local
}

// Move pans, or pinches when two touches are down.
func (z *Zoom) Move(m PointerMsg, local r2.Vec) {
	if m.Kind == Touch {
		prev, ok := z.touches[m.ID]
		if !ok {
			return
		}
		if len(z.touches) >= 2 {
			z.pinch(m.ID, prev, local)
		} else {
			z.set(z.t.TranslateBy(r2.Sub(local, prev)))
		}
		z.touches[m.ID] = local
		return
	}
	if !z.panning || m.ID != z.panID {
		return
	}
	z.set(z.t.TranslateBy(r2.Sub(local, z.last)))
	z.last = local
}

// pinch rescales around the midpoint of two touches as touch id moves from
// prev to next.
func (z *Zoom) pinch(id int, prev, next r2.Vec) {
	var other r2.Vec
	found := false
	for tid, p := range z.touches {
		if tid != id {
			other, found = p, true
			break
		}
	}
	if !found {
		return
	}
	before := r2.Norm(r2.Sub(prev, other))
	after := r2.Norm(r2.Sub(next, other))
	if before == 0 || after == 0 {
		return
	}
	oldMid := r2.Scale(0.5, r2.Add(prev, other))
	newMid := r2.Scale(0.5, r2.Add(next, other))

	w := z.t.Invert(oldMid)
	k := z.clamp(z.t.K * after / before)
	z.set(Transform{X: newMid.X - w.X*k, Y: newMid.Y - w.Y*k, K: k})
}

// End finishes the pan or releases a touch.
func (z *Zoom) End(m PointerMsg) {
	if m.Kind == Touch {
		delete(z.touches, m.ID)
		return
	}
	if m.ID == z.panID {
		z.panning = false
	}
}

// WheelAt zooms by a wheel delta, keeping local fixed on screen.
func (z *Zoom) WheelAt(deltaY float64, local r2.Vec) {
	z.interrupt()
	k := z.clamp(z.t.K * math.Pow(2, -deltaY*wheelFactor))
	z.set(z.t.ScaleAround(k, local))
}

// SetTransform jumps to t, cancelling any reset in flight.
func (z *Zoom) SetTransform(t Transform) {
	z.interrupt()
	t.K = z.clamp(t.K)
	z.set(t)
}

// Reset starts an animated transition back to the identity transform.
func (z *Zoom) Reset() tea.Cmd {
	z.animID++
	z.animating = true
	z.frames = 0
	z.vel = Transform{}
	return z.frame()
}

func (z *Zoom) frame() tea.Cmd {
	id := z.animID
	return tea.Tick(time.Second/time.Duration(z.fps), func(time.Time) tea.Msg {
		return resetFrameMsg{id: id}
	})
}

func (z *Zoom) interrupt() {
	if z.animating {
		z.animating = false
		z.animID++
	}
}

// Update advances the reset animation.
func (z *Zoom) Update(msg tea.Msg) tea.Cmd {
	f, ok := msg.(resetFrameMsg)
	if !ok || !z.animating || f.id != z.animID {
		return nil
	}

	var next Transform
	next.X, z.vel.X = z.spring.Update(z.t.X, z.vel.X, 0)
	next.Y, z.vel.Y = z.spring.Update(z.t.Y, z.vel.Y, 0)
	next.K, z.vel.K = z.spring.Update(z.t.K, z.vel.K, 1)
	next.K = math.Max(next.K, z.minK)
	z.frames++

	settled := math.Abs(next.X) < resetEpsilon && math.Abs(next.Y) < resetEpsilon &&
		math.Abs(next.K-1) < resetEpsilon
	if settled || z.frames >= 2*z.fps {
		z.animating = false
		z.set(Identity)
		return nil
	}
	z.set(next)
	return z.frame()
}
