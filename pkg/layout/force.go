package layout

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/vanderheijden86/forcegraph/pkg/model"
)

const (
	// theta is the Barnes-Hut opening criterion for the many-body force.
	theta = 0.9

	// minDistance2 softens repulsion between nodes closer than one unit.
	minDistance2 = 1.0

	initialRadius = 10.0
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

// phyllotaxis places node i on a sunflower spiral around the origin.
func phyllotaxis(i int) r2.Vec {
	radius := initialRadius * math.Sqrt(0.5+float64(i))
	angle := float64(i) * initialAngle
	return r2.Vec{X: radius * math.Cos(angle), Y: radius * math.Sin(angle)}
}

// jiggler produces tiny random offsets used to separate coincident points.
type jiggler struct {
	rng *rand.Rand
}

func newJiggler(seed uint64) jiggler {
	return jiggler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (j jiggler) next() float64 {
	return (j.rng.Float64() - 0.5) * 1e-6
}

// link is an edge bound to the current node set.
type link struct {
	source, target int
	distance       float64 // already scaled
	bias           float64 // share of the correction applied to the target
}

// bindLinks resolves edges against nodeCount nodes. Edges whose endpoints do
// not exist are skipped and counted.
func bindLinks(edges []model.Edge, nodeCount int, scale float64) ([]link, int) {
	valid, dropped := model.ValidateEdges(edges, nodeCount)

	degree := make([]int, nodeCount)
	for _, e := range valid {
		degree[e.Source]++
		degree[e.Target]++
	}

	links := make([]link, len(valid))
	for i, e := range valid {
		links[i] = link{
			source:   e.Source,
			target:   e.Target,
			distance: e.Distance * scale,
			bias:     float64(degree[e.Source]) / float64(degree[e.Source]+degree[e.Target]),
		}
	}
	return links, dropped
}

// applyLinks pulls linked nodes toward their rest distance.
func applyLinks(nodes []model.Node, links []link, strength, alpha float64, j jiggler) {
	if strength == 0 {
		return
	}
	for _, l := range links {
		s, t := &nodes[l.source], &nodes[l.target]
		x := t.X + t.VX - s.X - s.VX
		if x == 0 {
			x = j.next()
		}
		y := t.Y + t.VY - s.Y - s.VY
		if y == 0 {
			y = j.next()
		}
		d := math.Hypot(x, y)
		k := (d - l.distance) / d * alpha * strength
		x *= k
		y *= k
		t.VX -= x * l.bias
		t.VY -= y * l.bias
		s.VX += x * (1 - l.bias)
		s.VY += y * (1 - l.bias)
	}
}

// body adapts a node to barneshut.Particle2. Each body carries unit mass so a
// cell's aggregate mass is the number of nodes it holds.
type body struct {
	pos r2.Vec
}

func (b *body) Coord2() r2.Vec { return b.pos }
func (b *body) Mass() float64  { return 1 }

// applyManyBody repels every node from every other node. strength is the
// signed per-node charge; distanceMax of 0 means no cutoff.
func applyManyBody(nodes []model.Node, strength, distanceMax, alpha float64, j jiggler) {
	if strength == 0 || len(nodes) < 2 {
		return
	}
	max2 := math.Inf(1)
	if distanceMax > 0 {
		max2 = distanceMax * distanceMax
	}

	force := func(_, _ barneshut.Particle2, _, m2 float64, v r2.Vec) r2.Vec {
		l := r2.Norm2(v)
		if l == 0 || l >= max2 {
			return r2.Vec{}
		}
		if l < minDistance2 {
			l = math.Sqrt(minDistance2 * l)
		}
		return r2.Scale(strength*m2*alpha/l, v)
	}

	bodies := make([]barneshut.Particle2, len(nodes))
	seen := make(map[r2.Vec]struct{}, len(nodes))
	coincident := false
	for i := range nodes {
		p := r2.Vec{X: nodes[i].X, Y: nodes[i].Y}
		if _, dup := seen[p]; dup {
			coincident = true
		}
		seen[p] = struct{}{}
		bodies[i] = &body{pos: p}
	}

	if !coincident {
		plane, err := barneshut.NewPlane(bodies)
		if err == nil {
			for i := range nodes {
				f := plane.ForceOn(bodies[i], theta, force)
				nodes[i].VX += f.X
				nodes[i].VY += f.Y
			}
			return
		}
	}

	// Exact pairwise sum. Coincident points get a jiggled separation.
	for i := range nodes {
		for k := range nodes {
			if i == k {
				continue
			}
			v := r2.Sub(bodies[k].Coord2(), bodies[i].Coord2())
			if v.X == 0 {
				v.X = j.next()
			}
			if v.Y == 0 {
				v.Y = j.next()
			}
			f := force(nil, nil, 1, 1, v)
			nodes[i].VX += f.X
			nodes[i].VY += f.Y
		}
	}
}

// applyCenter pulls every node toward the origin.
func applyCenter(nodes []model.Node, strength, alpha float64) {
	if strength == 0 {
		return
	}
	k := strength * alpha
	for i := range nodes {
		nodes[i].VX -= nodes[i].X * k
		nodes[i].VY -= nodes[i].Y * k
	}
}

// applyCollide pushes overlapping nodes apart using their radii. Candidate
// pairs come from a uniform grid sized to the largest diameter.
func applyCollide(nodes []model.Node, strength float64, j jiggler) {
	if len(nodes) < 2 {
		return
	}
	maxR := 0.0
	for i := range nodes {
		if nodes[i].R > maxR {
			maxR = nodes[i].R
		}
	}
	if maxR <= 0 {
		return
	}
	cell := 2 * maxR

	type key struct{ cx, cy int }
	grid := make(map[key][]int, len(nodes))
	cellOf := func(i int) key {
		return key{
			cx: int(math.Floor((nodes[i].X + nodes[i].VX) / cell)),
			cy: int(math.Floor((nodes[i].Y + nodes[i].VY) / cell)),
		}
	}
	for i := range nodes {
		k := cellOf(i)
		grid[k] = append(grid[k], i)
	}

	for i := range nodes {
		ni := &nodes[i]
		ri := ni.R
		ri2 := ri * ri
		xi := ni.X + ni.VX
		yi := ni.Y + ni.VY
		c := cellOf(i)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, k := range grid[key{c.cx + dx, c.cy + dy}] {
					if k <= i {
						continue
					}
					nk := &nodes[k]
					rk := nk.R
					r := ri + rk
					x := xi - nk.X - nk.VX
					y := yi - nk.Y - nk.VY
					l := x*x + y*y
					if l >= r*r {
						continue
					}
					if x == 0 {
						x = j.next()
						l += x * x
					}
					if y == 0 {
						y = j.next()
						l += y * y
					}
					d := math.Sqrt(l)
					m := (r - d) / d * strength
					x *= m
					y *= m
					rk2 := rk * rk
					w := rk2 / (ri2 + rk2)
					ni.VX += x * w
					ni.VY += y * w
					nk.VX -= x * (1 - w)
					nk.VY -= y * (1 - w)
				}
			}
		}
	}
}

// integrate applies velocity decay and moves free nodes. Pinned nodes sit
// exactly on their pin with zero velocity.
func integrate(nodes []model.Node, velocityRetain float64) {
	for i := range nodes {
		n := &nodes[i]
		if n.FX != nil {
			n.X = *n.FX
			n.VX = 0
		} else {
			n.VX *= velocityRetain
			n.X += n.VX
		}
		if n.FY != nil {
			n.Y = *n.FY
			n.VY = 0
		} else {
			n.VY *= velocityRetain
			n.Y += n.VY
		}
	}
}
