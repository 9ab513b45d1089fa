// Package interact routes pointer input for the graph view: it inverts screen
// positions into simulation space, asks the layout engine which node is under
// the pointer, and hands each gesture to either node dragging or pan/zoom.
package interact

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gonum.org/v1/gonum/spatial/r2"
	"k8s.io/utils/clock"

	"github.com/vanderheijden86/forcegraph/pkg/config"
	"github.com/vanderheijden86/forcegraph/pkg/debug"
	"github.com/vanderheijden86/forcegraph/pkg/model"
)

// Engine is what the router needs from the layout engine.
type Engine interface {
	NodeAt(ctx context.Context, pos r2.Vec, scale float64, timeout time.Duration) int
	DragNode(idx int, pos *r2.Vec, alpha float64) error
}

// NodeAtResultMsg carries the answer to a gesture's node query back into
// the update loop.
type NodeAtResultMsg struct {
	Gesture uint64
	NodeIdx int
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithClock sets the clock used for double-tap detection.
func WithClock(c clock.PassiveClock) RouterOption {
	return func(r *Router) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithContext bounds every node query by ctx.
func WithContext(ctx context.Context) RouterOption {
	return func(r *Router) {
		if ctx != nil {
			r.ctx = ctx
		}
	}
}

// WithFPS sets the frame rate of the reset animation.
func WithFPS(fps int) RouterOption {
	return func(r *Router) { r.fps = fps }
}

// Router turns pointer events into engine drags and view transforms. It is
// driven from a single update loop and is not safe for concurrent use.
type Router struct {
	engine  Engine
	cfg     config.InteractionConfig
	clock   clock.PassiveClock
	ctx     context.Context
	fps     int
	surface Surface

	zoom *Zoom
	drag *Drag

	activeNode int
	waiting    bool
	gesture    uint64
	start      PointerMsg
	released   bool
	held       []PointerMsg // touches that landed while the query was out

	lastTapAt  time.Time
	lastTapPos r2.Vec
	hasTap     bool

	onTransform func(Transform)
	dragErr     error
}

// NewRouter returns a router that queries and drags nodes on engine.
func NewRouter(engine Engine, cfg config.InteractionConfig, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		cfg:        cfg,
		clock:      clock.RealClock{},
		ctx:        context.Background(),
		fps:        60,
		activeNode: model.NoNode,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.zoom = NewZoom(cfg.MinScale, cfg.MaxScale, r.fps)
	r.zoom.OnChange(func(t Transform) {
		if r.onTransform != nil {
			r.onTransform(t)
		}
	})

	r.drag = NewDrag()
	r.drag.OnDrag = func(idx int, world r2.Vec) {
		r.sendDrag(idx, &world)
	}
	r.drag.OnEnd = func(idx int, _ r2.Vec) {
		r.sendDrag(idx, nil)
		r.activeNode = model.NoNode
	}
	return r
}

func (r *Router) sendDrag(idx int, pos *r2.Vec) {
	if err := r.engine.DragNode(idx, pos, r.cfg.DragAlpha); err != nil {
		r.dragErr = err
		debug.Log("interact: drag node %d: %v", idx, err)
	}
}

// SetSurface records the rendering surface's bounding box.
func (r *Router) SetSurface(s Surface) {
	r.surface = s
}

// Surface returns the current rendering surface.
func (r *Router) Surface() Surface {
	return r.surface
}

// Transform returns the current pan/zoom transform.
func (r *Router) Transform() Transform {
	return r.zoom.Transform()
}

// OnTransform registers fn to observe every transform change.
func (r *Router) OnTransform(fn func(Transform)) {
	r.onTransform = fn
}

// SetTransform jumps the view to t.
func (r *Router) SetTransform(t Transform) {
	r.zoom.SetTransform(t)
}

// ActiveNode returns the node engaged by the current gesture, or model.NoNode.
func (r *Router) ActiveNode() int {
	return r.activeNode
}

// Waiting reports whether a node query is outstanding.
func (r *Router) Waiting() bool {
	return r.waiting
}

// Dragging reports whether a node drag is in progress.
func (r *Router) Dragging() bool {
	return r.drag.Active()
}

// Err returns the last error from the engine, if any.
func (r *Router) Err() error {
	return r.dragErr
}

// ToWorld inverts a screen position through the surface and transform.
func (r *Router) ToWorld(screen r2.Vec) r2.Vec {
	return ToWorld(screen, r.surface, r.zoom.Transform())
}

// ToScreen maps a world position onto the screen.
func (r *Router) ToScreen(world r2.Vec) r2.Vec {
	return ToScreen(world, r.surface, r.zoom.Transform())
}

// Reset animates the view back to identity.
func (r *Router) Reset() tea.Cmd {
	return r.zoom.Reset()
}

// Update handles pointer events, query results and animation frames.
func (r *Router) Update(msg tea.Msg) tea.Cmd {
	switch m := msg.(type) {
	case PointerMsg:
		return r.handlePointer(m)
	case NodeAtResultMsg:
		return r.resolve(m)
	case resetFrameMsg:
		return r.zoom.Update(m)
	}
	return nil
}

func (r *Router) handlePointer(m PointerMsg) tea.Cmd {
	switch m.Type {
	case PointerDown:
		return r.pointerDown(m)
	case PointerMove:
		r.pointerMove(m)
	case PointerUp:
		r.pointerUp(m)
	case Wheel:
		if !owned(m) {
			return nil
		}
		m.preventDefault()
		r.zoom.WheelAt(m.DeltaY, r.surface.Local(m.Pos))
	case DoubleClick:
		if !owned(m) {
			return nil
		}
		m.preventDefault()
		return r.zoom.Reset()
	}
	return nil
}

func (r *Router) pointerDown(m PointerMsg) tea.Cmd {
	if !owned(m) {
		return nil
	}

	if m.Kind == Touch {
		if r.doubleTap(m) {
			m.preventDefault()
			return r.zoom.Reset()
		}
		// A further finger joins the pan as a pinch.
		if r.zoom.Active() && !r.waiting {
			r.zoom.Start(m, r.surface.Local(m.Pos))
			return nil
		}
		if r.waiting && m.ID != r.start.ID {
			m.preventDefault()
			r.held = append(r.held, m)
			return nil
		}
	}
	if r.waiting || r.drag.Active() || r.zoom.Active() {
		return nil
	}

	m.preventDefault()
	r.waiting = true
	r.released = false
	r.held = r.held[:0]
	r.gesture++
	r.start = m

	gesture := r.gesture
	world := r.ToWorld(m.Pos)
	scale := r.zoom.Transform().K
	engine, ctx, timeout := r.engine, r.ctx, r.cfg.QueryTimeout
	return func() tea.Msg {
		return NodeAtResultMsg{Gesture: gesture, NodeIdx: engine.NodeAt(ctx, world, scale, timeout)}
	}
}

// doubleTap records a touch start and reports whether it completes a double tap.
func (r *Router) doubleTap(m PointerMsg) bool {
	now := r.clock.Now()
	if r.hasTap && now.Sub(r.lastTapAt) <= r.cfg.DoubleTapInterval &&
		r2.Norm(r2.Sub(m.Pos, r.lastTapPos)) <= r.cfg.DoubleTapDistance {
		r.hasTap = false
		return true
	}
	r.hasTap = true
	r.lastTapAt = now
	r.lastTapPos = m.Pos
	return false
}

func (r *Router) resolve(m NodeAtResultMsg) tea.Cmd {
	if !r.waiting || m.Gesture != r.gesture {
		return nil
	}
	r.waiting = false
	r.activeNode = m.NodeIdx
	held := r.held
	r.held = nil

	if r.released {
		// The pointer went up before the answer; nothing left to route.
		r.released = false
		r.activeNode = model.NoNode
		return nil
	}

	if m.NodeIdx != model.NoNode {
		r.drag.Start(m.NodeIdx, r.start.ID, r.ToWorld(r.start.Pos))
		return nil
	}
	r.zoom.Start(r.start, r.surface.Local(r.start.Pos))
	for _, h := range held {
		r.zoom.Start(h, r.surface.Local(h.Pos))
	}
	return nil
}

// holdIndex returns the position of touch id in the held list, or -1.
func (r *Router) holdIndex(id int) int {
	for i, h := range r.held {
		if h.ID == id {
			return i
		}
	}
	return -1
}

func (r *Router) pointerMove(m PointerMsg) {
	if r.waiting {
		if i := r.holdIndex(m.ID); i >= 0 {
			r.held[i].Pos = m.Pos
		}
		return
	}
	if r.drag.Move(m.ID, r.ToWorld(m.Pos)) {
		return
	}
	r.zoom.Move(m, r.surface.Local(m.Pos))
}

func (r *Router) pointerUp(m PointerMsg) {
	if r.waiting {
		if m.ID == r.start.ID {
			r.released = true
		} else if i := r.holdIndex(m.ID); i >= 0 {
			r.held = append(r.held[:i], r.held[i+1:]...)
		}
		return
	}
	if r.drag.End(m.ID, r.ToWorld(m.Pos)) {
		return
	}
	r.zoom.End(m)
}
