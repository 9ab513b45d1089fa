package layout

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/vanderheijden86/forcegraph/pkg/model"
)

var (
	// ErrEdgeEndpoint reports edges dropped because an endpoint is not a node.
	ErrEdgeEndpoint = errors.New("edge endpoint out of range")

	// ErrNodeIndex reports a drag addressed to a node that does not exist.
	ErrNodeIndex = errors.New("node index out of range")
)

// Parameters are the integrator constants.
type Parameters struct {
	AlphaMin      float64
	AlphaDecay    float64
	VelocityDecay float64
	HitTolerance  float64 // screen pixels added to a node's radius by NodeAt
}

// DefaultParameters returns the standard force-simulation constants.
func DefaultParameters() Parameters {
	const alphaMin = 0.001
	return Parameters{
		AlphaMin:      alphaMin,
		AlphaDecay:    1 - math.Pow(alphaMin, 1.0/300),
		VelocityDecay: 0.4,
		HitTolerance:  4,
	}
}

// Applied describes the force parameters currently in effect.
type Applied struct {
	ManyBodyStrength float64
	DistanceMax      float64
	Normalization    float64
	LinkStrength     float64
	LinkDistances    []float64
	CenterStrength   float64
}

// Tick is the state reported after one integrator step.
type Tick struct {
	Progress float64
	Nodes    []model.Node
}

// IterationCount is the number of steps for alpha to decay to alphaMin.
func IterationCount(alpha, alphaMin, alphaDecay float64) int {
	if alpha <= 0 || alphaDecay <= 0 || alphaDecay >= 1 {
		return 0
	}
	return int(math.Round(math.Log(alphaMin/alpha) / math.Log(1-alphaDecay)))
}

// Simulation is the layout state owned by a single worker. It is not safe
// for concurrent use.
type Simulation struct {
	params   Parameters
	settings model.Settings

	nodes    []model.Node
	edges    []model.Edge
	links    []link
	buffered bool

	norm float64

	alpha     float64
	iteration int
	total     int
	running   bool
	settle    bool
	enabled   bool

	jiggle jiggler
}

// NewSimulation returns an empty, enabled simulation.
func NewSimulation(params Parameters, settings model.Settings) *Simulation {
	return &Simulation{
		params:   params,
		settings: settings,
		norm:     1,
		enabled:  true,
		jiggle:   newJiggler(1),
	}
}

// SetNodes installs node radii. A same-length update only changes radii;
// anything else replaces the node set and rebinds the current edges.
func (s *Simulation) SetNodes(specs []model.NodeSpec) error {
	if len(specs) == len(s.nodes) {
		for i := range specs {
			s.nodes[i].R = specs[i].R
		}
		return nil
	}

	nodes := make([]model.Node, len(specs))
	for i, ns := range specs {
		p := phyllotaxis(i)
		nodes[i] = model.Node{ID: i, R: ns.R, X: p.X, Y: p.Y}
	}
	s.nodes = nodes

	if len(nodes) > 0 {
		s.norm = math.Pow(float64(len(nodes)), s.settings.RepulsionNormalization)
	} else {
		s.norm = 1
	}

	if len(nodes) == 0 {
		s.links = nil
		s.buffered = len(s.edges) > 0
		return nil
	}
	return s.bind()
}

// SetEdges replaces the edge set when its length changes. Content changes at
// the same length are not picked up.
func (s *Simulation) SetEdges(edges []model.Edge) error {
	if len(edges) == len(s.edges) {
		return nil
	}
	s.edges = append([]model.Edge(nil), edges...)
	if len(s.nodes) == 0 {
		s.buffered = true
		return nil
	}
	return s.bind()
}

func (s *Simulation) bind() error {
	links, dropped := bindLinks(s.edges, len(s.nodes), s.settings.LinkDistanceScale)
	s.links = links
	s.buffered = false
	if dropped > 0 {
		return fmt.Errorf("%w: dropped %d of %d edges for %d nodes", ErrEdgeEndpoint, dropped, len(s.edges), len(s.nodes))
	}
	return nil
}

// SetSettings applies new force parameters. Repulsion keeps the
// normalization computed at the last node-count change.
func (s *Simulation) SetSettings(settings model.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	scaleChanged := settings.LinkDistanceScale != s.settings.LinkDistanceScale
	s.settings = settings
	if scaleChanged && len(s.links) > 0 {
		valid, _ := model.ValidateEdges(s.edges, len(s.nodes))
		for i := range s.links {
			s.links[i].distance = valid[i].Distance * settings.LinkDistanceScale
		}
	}
	return nil
}

// DragNode pins node idx at pos, or releases it when pos is nil.
func (s *Simulation) DragNode(idx int, pos *r2.Vec) error {
	if idx < 0 || idx >= len(s.nodes) {
		return fmt.Errorf("%w: %d of %d", ErrNodeIndex, idx, len(s.nodes))
	}
	n := &s.nodes[idx]
	if pos == nil {
		n.FX, n.FY = nil, nil
		return nil
	}
	x, y := pos.X, pos.Y
	n.FX, n.FY = &x, &y
	return nil
}

// SetEnabled toggles animation. While disabled every restart settles in a
// single step.
func (s *Simulation) SetEnabled(enabled bool) {
	s.enabled = enabled
}

// Enabled reports whether restarts animate.
func (s *Simulation) Enabled() bool {
	return s.enabled
}

// Restart reheats the simulation to alpha and extends the progress budget.
// It reports false when the simulation is inert for lack of nodes or edges.
func (s *Simulation) Restart(alpha float64) bool {
	if len(s.nodes) == 0 || len(s.edges) == 0 {
		return false
	}
	if !s.enabled || alpha < 0 {
		alpha = 0
	}
	s.alpha = alpha

	if alpha == 0 {
		s.iteration = 0
		s.running = false
		s.settle = true
		return true
	}

	steps := IterationCount(alpha, s.params.AlphaMin, s.params.AlphaDecay)
	s.total = max(s.iteration, steps)
	s.iteration = s.total
	s.running = true
	return true
}

// Active reports whether a step is due: either the integrator is running or
// a settle step is pending.
func (s *Simulation) Active() bool {
	return s.running || s.settle
}

// Running reports whether the integrator is above its convergence threshold.
func (s *Simulation) Running() bool {
	return s.running
}

// Halt stops the integrator and drops any pending settle step.
func (s *Simulation) Halt() {
	s.running = false
	s.settle = false
}

// Step advances the integrator by one step and returns the resulting tick.
func (s *Simulation) Step() Tick {
	s.settle = false

	s.alpha += (0 - s.alpha) * s.params.AlphaDecay
	strength := -s.settings.RepulsionStrength / s.norm
	applyManyBody(s.nodes, strength, s.settings.RepulsionLimit, s.alpha, s.jiggle)
	applyLinks(s.nodes, s.links, s.settings.LinkStrength, s.alpha, s.jiggle)
	applyCenter(s.nodes, s.settings.CenterStrength, s.alpha)
	applyCollide(s.nodes, 1, s.jiggle)
	integrate(s.nodes, 1-s.params.VelocityDecay)

	if s.alpha < s.params.AlphaMin {
		s.running = false
	}

	progress := 0.0
	if s.iteration > 1 && s.total > 0 {
		progress = float64(s.iteration) / float64(s.total)
	}
	if s.iteration > 0 {
		s.iteration--
	}
	return Tick{Progress: progress, Nodes: model.CloneNodes(s.nodes)}
}

// Converge steps until the simulation is idle or maxSteps is reached and
// returns the last tick. With nothing to do it returns the current nodes.
func (s *Simulation) Converge(maxSteps int) Tick {
	last := Tick{Nodes: s.Snapshot()}
	for i := 0; i < maxSteps && s.Active(); i++ {
		last = s.Step()
	}
	return last
}

// NodeAt returns the nearest node whose radius, widened by the hit tolerance
// at the given zoom scale, contains pos.
func (s *Simulation) NodeAt(pos r2.Vec, scale float64) int {
	if scale <= 0 || math.IsNaN(scale) {
		scale = 1
	}
	slack := s.params.HitTolerance / scale

	best := model.NoNode
	bestDist := math.Inf(1)
	for i := range s.nodes {
		n := &s.nodes[i]
		d := r2.Norm(r2.Sub(pos, r2.Vec{X: n.X, Y: n.Y}))
		if d <= n.R+slack && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Snapshot returns a copy of the current nodes.
func (s *Simulation) Snapshot() []model.Node {
	return model.CloneNodes(s.nodes)
}

// Edges returns the edge set as last supplied.
func (s *Simulation) Edges() []model.Edge {
	return append([]model.Edge(nil), s.edges...)
}

// Buffered reports whether edges are waiting for nodes.
func (s *Simulation) Buffered() bool {
	return s.buffered
}

// Alpha returns the current energy.
func (s *Simulation) Alpha() float64 {
	return s.alpha
}

// Countdown returns the remaining and total progress steps.
func (s *Simulation) Countdown() (remaining, total int) {
	return s.iteration, s.total
}

// Applied returns the force parameters in effect.
func (s *Simulation) Applied() Applied {
	distances := make([]float64, len(s.links))
	for i, l := range s.links {
		distances[i] = l.distance
	}
	return Applied{
		ManyBodyStrength: -s.settings.RepulsionStrength / s.norm,
		DistanceMax:      s.settings.RepulsionLimit,
		Normalization:    s.norm,
		LinkStrength:     s.settings.LinkStrength,
		LinkDistances:    distances,
		CenterStrength:   s.settings.CenterStrength,
	}
}
