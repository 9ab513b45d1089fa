// Package testutil provides graph fixture generators for layout tests.
// All generators produce deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"

	"github.com/vanderheijden86/forcegraph/pkg/model"
)

// Fixture is a graph ready to feed to the engine or a document.
type Fixture struct {
	Description string
	Nodes       []model.NodeSpec
	Edges       []model.Edge
	Properties  Properties
}

// Properties holds what a fixture is known to satisfy.
type Properties struct {
	Connected  bool
	SelfLoops  int
	Components int
}

// GeneratorConfig controls radii and link lengths.
type GeneratorConfig struct {
	Seed      int64   // Random seed for determinism
	MinRadius float64 // default 4
	MaxRadius float64 // default MinRadius; larger values draw radii uniformly
	Distance  float64 // edge rest length (default 30)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:      42,
		MinRadius: 4,
		MaxRadius: 4,
		Distance:  30,
	}
}

// Generator creates fixtures with various topologies.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	if cfg.MinRadius <= 0 {
		cfg.MinRadius = 4
	}
	if cfg.MaxRadius < cfg.MinRadius {
		cfg.MaxRadius = cfg.MinRadius
	}
	if cfg.Distance <= 0 {
		cfg.Distance = 30
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

func (g *Generator) nodes(n int) []model.NodeSpec {
	out := make([]model.NodeSpec, n)
	for i := range out {
		r := g.cfg.MinRadius
		if g.cfg.MaxRadius > g.cfg.MinRadius {
			r += g.rng.Float64() * (g.cfg.MaxRadius - g.cfg.MinRadius)
		}
		out[i] = model.NodeSpec{R: r}
	}
	return out
}

func (g *Generator) edge(s, t int) model.Edge {
	return model.Edge{Source: s, Target: t, Distance: g.cfg.Distance}
}

// Chain links n0 - n1 - ... - n{size-1}.
func (g *Generator) Chain(size int) Fixture {
	edges := make([]model.Edge, 0, max(size-1, 0))
	for i := 1; i < size; i++ {
		edges = append(edges, g.edge(i-1, i))
	}
	return Fixture{
		Description: fmt.Sprintf("chain of %d nodes", size),
		Nodes:       g.nodes(size),
		Edges:       edges,
		Properties:  Properties{Connected: true, Components: min(size, 1)},
	}
}

// Star links every spoke to hub node 0.
func (g *Generator) Star(spokes int) Fixture {
	edges := make([]model.Edge, 0, spokes)
	for i := 1; i <= spokes; i++ {
		edges = append(edges, g.edge(0, i))
	}
	return Fixture{
		Description: fmt.Sprintf("star with %d spokes", spokes),
		Nodes:       g.nodes(spokes + 1),
		Edges:       edges,
		Properties:  Properties{Connected: true, Components: 1},
	}
}

// Cycle closes a chain of size nodes into a ring.
func (g *Generator) Cycle(size int) Fixture {
	f := g.Chain(size)
	if size > 1 {
		f.Edges = append(f.Edges, g.edge(size-1, 0))
	}
	f.Description = fmt.Sprintf("cycle of %d nodes", size)
	return f
}

// SelfLoop is one node with an edge to itself.
func (g *Generator) SelfLoop() Fixture {
	return Fixture{
		Description: "single self-loop",
		Nodes:       g.nodes(1),
		Edges:       []model.Edge{g.edge(0, 0)},
		Properties:  Properties{Connected: true, SelfLoops: 1, Components: 1},
	}
}

// Tree is a complete tree of the given depth where every inner node has
// breadth children. Node 0 is the root.
func (g *Generator) Tree(depth, breadth int) Fixture {
	size := 1
	var edges []model.Edge
	level := []int{0}
	for d := 0; d < depth; d++ {
		var next []int
		for _, parent := range level {
			for b := 0; b < breadth; b++ {
				edges = append(edges, g.edge(parent, size))
				next = append(next, size)
				size++
			}
		}
		level = next
	}
	return Fixture{
		Description: fmt.Sprintf("tree depth %d breadth %d", depth, breadth),
		Nodes:       g.nodes(size),
		Edges:       edges,
		Properties:  Properties{Connected: true, Components: 1},
	}
}

// Disconnected is several chains with no edges between them.
func (g *Generator) Disconnected(components, componentSize int) Fixture {
	var edges []model.Edge
	for c := 0; c < components; c++ {
		base := c * componentSize
		for i := 1; i < componentSize; i++ {
			edges = append(edges, g.edge(base+i-1, base+i))
		}
	}
	return Fixture{
		Description: fmt.Sprintf("%d chains of %d nodes", components, componentSize),
		Nodes:       g.nodes(components * componentSize),
		Edges:       edges,
		Properties:  Properties{Connected: components <= 1, Components: components},
	}
}

// Complete links every pair of nodes once.
func (g *Generator) Complete(size int) Fixture {
	var edges []model.Edge
	for i := 0; i < size; i++ {
		for j := i + 1; j < size; j++ {
			edges = append(edges, g.edge(i, j))
		}
	}
	return Fixture{
		Description: fmt.Sprintf("complete graph of %d nodes", size),
		Nodes:       g.nodes(size),
		Edges:       edges,
		Properties:  Properties{Connected: true, Components: min(size, 1)},
	}
}

// Random links each ordered pair with probability density, self-loops
// included, so edge lists may repeat a pair in both directions.
func (g *Generator) Random(size int, density float64) Fixture {
	var edges []model.Edge
	loops := 0
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			if g.rng.Float64() < density {
				edges = append(edges, g.edge(i, j))
				if i == j {
					loops++
				}
			}
		}
	}
	return Fixture{
		Description: fmt.Sprintf("random graph of %d nodes, density %.2f", size, density),
		Nodes:       g.nodes(size),
		Edges:       edges,
		Properties:  Properties{SelfLoops: loops},
	}
}

// Ladder is two chains of length nodes joined by rungs.
func (g *Generator) Ladder(length int) Fixture {
	var edges []model.Edge
	for i := 0; i < length; i++ {
		left, right := 2*i, 2*i+1
		edges = append(edges, g.edge(left, right))
		if i > 0 {
			edges = append(edges, g.edge(left-2, left), g.edge(right-2, right))
		}
	}
	return Fixture{
		Description: fmt.Sprintf("ladder of length %d", length),
		Nodes:       g.nodes(2 * length),
		Edges:       edges,
		Properties:  Properties{Connected: true, Components: min(length, 1)},
	}
}
