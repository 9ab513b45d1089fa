// Package neighbors computes node adjacency from an edge list on a background
// worker.
//
// Overlapping requests are coalesced: a new Submit supersedes any request
// still waiting, which returns ErrSuperseded, and only the newest request
// receives a result.
package neighbors

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vanderheijden86/forcegraph/pkg/channel"
	"github.com/vanderheijden86/forcegraph/pkg/metrics"
	"github.com/vanderheijden86/forcegraph/pkg/model"
)

var (
	// ErrSuperseded is returned to a caller whose request was replaced by a newer one.
	ErrSuperseded = errors.New("neighbour computation superseded")

	// ErrDestroyed is returned once the service has been destroyed.
	ErrDestroyed = errors.New("neighbour service destroyed")
)

// Map lists the neighbours of each node id.
type Map map[int][]int

// Adjacency builds the undirected neighbour map of edges. Parallel edges
// repeat a neighbour and a self-loop lists the node twice under itself.
func Adjacency(edges []model.Edge) Map {
	m := make(Map)
	for _, e := range edges {
		m[e.Source] = append(m[e.Source], e.Target)
		m[e.Target] = append(m[e.Target], e.Source)
	}
	return m
}

type request struct {
	edges []model.Edge
}

type response struct {
	neighbours Map
}

// waiter is the single registered caller.
type waiter struct {
	gen  uint64
	done chan outcome
}

type outcome struct {
	m   Map
	err error
}

// Service owns the adjacency worker and the single-slot request register.
type Service struct {
	ch        *channel.Channel[request, response]
	log       *channel.EventLogger
	adjacency func([]model.Edge) Map

	mu        sync.Mutex
	gen       uint64
	inFlight  int
	waiting   *waiter
	destroyed bool
}

// Option configures a Service.
type Option func(*Service)

// WithEventLogger replaces the worker's event logger.
func WithEventLogger(l *channel.EventLogger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New starts the adjacency worker.
func New(opts ...Option) *Service {
	s := &Service{
		log:       channel.NewEventLogger("neighbors"),
		adjacency: Adjacency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ch = channel.Spawn("neighbors", s.work)
	s.ch.Subscribe(s.resolve)
	return s
}

func (s *Service) work(ctx context.Context, inbox <-chan request, post func(response)) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-inbox:
			start := time.Now()
			m := s.adjacency(req.edges)
			metrics.NeighborCompute.Record(time.Since(start))
			s.log.Event(channel.LogLevelTrace, "computed", map[string]any{
				"edges": len(req.edges),
				"nodes": len(m),
			})
			post(response{neighbours: m})
		}
	}
}

// Pending is a registered request. Its result is collected with Wait.
type Pending struct {
	s *Service
	w *waiter
	o outcome
}

// Resolved returns a Pending whose Wait yields m and err at once.
func Resolved(m Map, err error) *Pending {
	return &Pending{o: outcome{m: m, err: err}}
}

// Submit registers a request for edges and hands it to the worker. The
// register is updated before Submit returns, so the order of Submit calls
// decides which request is newest; any earlier waiter is superseded here.
func (s *Service) Submit(edges []model.Edge) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return Resolved(nil, ErrDestroyed)
	}
	if s.waiting != nil {
		s.waiting.done <- outcome{err: ErrSuperseded}
		s.waiting = nil
		metrics.NeighborSuperseded.Inc()
		s.log.Event(channel.LogLevelDebug, "superseded", map[string]any{"gen": s.gen})
	}
	if err := s.ch.Send(request{edges: append([]model.Edge(nil), edges...)}); err != nil {
		return Resolved(nil, ErrDestroyed)
	}
	s.gen++
	s.inFlight++
	w := &waiter{gen: s.gen, done: make(chan outcome, 1)}
	s.waiting = w
	return &Pending{s: s, w: w}
}

// Wait blocks until the request resolves. It returns ErrSuperseded if a later
// Submit replaced it, ErrDestroyed after Destroy, and ctx.Err() if ctx ends
// first. Wait may be called once.
func (p *Pending) Wait(ctx context.Context) (Map, error) {
	if p.w == nil {
		return p.o.m, p.o.err
	}
	select {
	case o := <-p.w.done:
		return o.m, o.err
	case <-ctx.Done():
		p.s.mu.Lock()
		if p.s.waiting == p.w {
			p.s.waiting = nil
		}
		p.s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Compute submits edges and waits for the result.
func (s *Service) Compute(ctx context.Context, edges []model.Edge) (Map, error) {
	return s.Submit(edges).Wait(ctx)
}

// resolve hands a result to the caller whose request drains the in-flight count.
func (s *Service) resolve(r response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	if s.inFlight != 0 || s.waiting == nil {
		return
	}
	s.waiting.done <- outcome{m: r.neighbours}
	s.waiting = nil
}

// Destroy stops the worker. A waiting caller gets ErrDestroyed.
func (s *Service) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	if s.waiting != nil {
		s.waiting.done <- outcome{err: ErrDestroyed}
		s.waiting = nil
	}
	s.mu.Unlock()
	s.ch.Terminate()
}
