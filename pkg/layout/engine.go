// Package layout runs the force-directed layout simulation on a background
// worker and answers spatial queries against it.
//
// An Engine owns one worker. All simulation state lives inside that worker
// and is only reached through the commands in commands.go; the Engine
// methods are thin senders, apart from NodeAt which waits for the worker's
// answer up to a deadline measured on the Engine's clock.
package layout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/spatial/r2"
	"k8s.io/utils/clock"

	"github.com/vanderheijden86/forcegraph/pkg/channel"
	"github.com/vanderheijden86/forcegraph/pkg/metrics"
	"github.com/vanderheijden86/forcegraph/pkg/model"
)

// DefaultQueryTimeout bounds NodeAt when the caller passes no timeout.
const DefaultQueryTimeout = time.Second

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	clock    clock.WithTicker
	frame    time.Duration
	params   Parameters
	settings model.Settings
	logger   *channel.EventLogger
	onError  func(WorkerError)
}

// WithClock sets the clock used for frame pacing and query deadlines.
func WithClock(c clock.WithTicker) Option {
	return func(cfg *engineConfig) {
		if c != nil {
			cfg.clock = c
		}
	}
}

// WithFrameInterval paces simulation steps. Zero steps as fast as possible.
func WithFrameInterval(d time.Duration) Option {
	return func(cfg *engineConfig) {
		if d >= 0 {
			cfg.frame = d
		}
	}
}

// WithParameters overrides the integrator constants.
func WithParameters(p Parameters) Option {
	return func(cfg *engineConfig) { cfg.params = p }
}

// WithSettings sets the force settings in effect before the first settings command.
func WithSettings(s model.Settings) Option {
	return func(cfg *engineConfig) { cfg.settings = s }
}

// WithEventLogger replaces the worker's event logger.
func WithEventLogger(l *channel.EventLogger) Option {
	return func(cfg *engineConfig) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithErrorHandler observes failures recovered inside the worker.
func WithErrorHandler(fn func(WorkerError)) Option {
	return func(cfg *engineConfig) { cfg.onError = fn }
}

// pendingQuery is the single outstanding NodeAt request.
type pendingQuery struct {
	seq   uint64
	reply chan int
}

// Engine is a handle to a running layout simulation.
type Engine struct {
	id    string
	ch    *channel.Channel[Command, Message]
	clock clock.WithTicker

	// query serializes NodeAt so at most one request is in flight.
	query   *semaphore.Weighted
	seq     atomic.Uint64
	mu      sync.Mutex
	pending *pendingQuery

	ticks  chan TickMsg
	onTick atomic.Pointer[func(TickMsg)]
}

// New starts a simulation worker.
func New(opts ...Option) *Engine {
	return newEngine(nil, opts...)
}

// newEngine starts an engine whose worker is run, or the simulation worker
// when run is nil.
func newEngine(run channel.WorkerFunc[Command, Message], opts ...Option) *Engine {
	cfg := engineConfig{
		clock:    clock.RealClock{},
		params:   DefaultParameters(),
		settings: model.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.NewString()
	if cfg.logger == nil {
		cfg.logger = channel.NewEventLogger("layout")
	}

	if run == nil {
		w := &worker{
			sim:     NewSimulation(cfg.params, cfg.settings),
			clock:   cfg.clock,
			frame:   cfg.frame,
			log:     cfg.logger,
			onError: cfg.onError,
		}
		run = w.run
	}

	e := &Engine{
		id:    id,
		clock: cfg.clock,
		query: semaphore.NewWeighted(1),
		ticks: make(chan TickMsg, 1),
	}
	e.ch = channel.Spawn("layout-"+id[:8], run)
	e.ch.Subscribe(e.dispatch)
	return e
}

// ID identifies this engine instance in logs.
func (e *Engine) ID() string {
	return e.id
}

// Close stops the worker. Pending queries resolve to model.NoNode.
func (e *Engine) Close() {
	e.ch.Terminate()
	e.mu.Lock()
	if e.pending != nil {
		select {
		case e.pending.reply <- model.NoNode:
		default:
		}
		e.pending = nil
	}
	e.mu.Unlock()
}

// Done is closed once the worker has stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.ch.Done()
}

// SetNodes sends node radii and restarts at alpha.
func (e *Engine) SetNodes(nodes []model.NodeSpec, alpha float64) error {
	return e.ch.Send(SetNodesCmd{Nodes: append([]model.NodeSpec(nil), nodes...), Alpha: alpha})
}

// SetEdges sends the edge set and restarts at alpha.
func (e *Engine) SetEdges(edges []model.Edge, alpha float64) error {
	return e.ch.Send(SetEdgesCmd{Edges: append([]model.Edge(nil), edges...), Alpha: alpha})
}

// SetSettings sends force settings and restarts at alpha.
func (e *Engine) SetSettings(s model.Settings, alpha float64) error {
	return e.ch.Send(SetSettingsCmd{Settings: s, Alpha: alpha})
}

// DragNode pins node idx at pos (nil releases it) and restarts at alpha.
func (e *Engine) DragNode(idx int, pos *r2.Vec, alpha float64) error {
	var p *r2.Vec
	if pos != nil {
		v := *pos
		p = &v
	}
	return e.ch.Send(DragCmd{NodeIdx: idx, Pos: p, Alpha: alpha})
}

// SetEnabled toggles animation; enabling restarts at alpha.
func (e *Engine) SetEnabled(enabled bool, alpha float64) error {
	return e.ch.Send(EnabledCmd{Enabled: enabled, Alpha: alpha})
}

// Send forwards an already-built command.
func (e *Engine) Send(cmd Command) error {
	return e.ch.Send(cmd)
}

// Ticks delivers the most recent tick. Older ticks a slow reader has not
// taken are replaced.
func (e *Engine) Ticks() <-chan TickMsg {
	return e.ticks
}

// OnTick registers fn to receive every tick in order, on the delivery goroutine.
func (e *Engine) OnTick(fn func(TickMsg)) {
	if fn == nil {
		e.onTick.Store(nil)
		return
	}
	e.onTick.Store(&fn)
}

// NodeAt returns the node under pos at zoom scale, or model.NoNode when none
// qualifies, the engine is closed, ctx ends, or no answer arrives within
// timeout. Concurrent callers are served one at a time.
func (e *Engine) NodeAt(ctx context.Context, pos r2.Vec, scale float64, timeout time.Duration) int {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	if err := e.query.Acquire(ctx, 1); err != nil {
		return model.NoNode
	}
	defer e.query.Release(1)

	start := e.clock.Now()
	defer func() {
		metrics.NodeAtQuery.Record(e.clock.Since(start))
	}()

	q := &pendingQuery{seq: e.seq.Add(1), reply: make(chan int, 1)}
	e.mu.Lock()
	e.pending = q
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.pending == q {
			e.pending = nil
		}
		e.mu.Unlock()
	}()

	timer := e.clock.NewTimer(timeout)
	defer timer.Stop()

	if err := e.ch.Send(NodeAtCmd{Seq: q.seq, Pos: pos, Scale: scale}); err != nil {
		return model.NoNode
	}

	select {
	case idx := <-q.reply:
		return idx
	case <-timer.C():
		metrics.QueriesTimedOut.Inc()
		return model.NoNode
	case <-ctx.Done():
		return model.NoNode
	}
}

// dispatch runs on the channel's delivery goroutine.
func (e *Engine) dispatch(msg Message) {
	switch m := msg.(type) {
	case TickMsg:
		if fn := e.onTick.Load(); fn != nil {
			(*fn)(m)
		}
		select {
		case e.ticks <- m:
		default:
			select {
			case <-e.ticks:
			default:
			}
			select {
			case e.ticks <- m:
			default:
			}
		}
	case NodeAtMsg:
		e.mu.Lock()
		q := e.pending
		if q != nil && q.seq == m.Seq {
			e.pending = nil
		} else {
			q = nil
		}
		e.mu.Unlock()
		if q != nil {
			q.reply <- m.NodeIdx
		}
	}
}
