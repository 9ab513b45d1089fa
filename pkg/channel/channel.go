// Package channel provides the duplex message channel between a caller and a
// background worker goroutine.
//
// A Channel owns exactly one worker. Messages sent with Send reach the worker
// in send order; messages the worker posts reach the single subscribed handler
// in post order. Neither direction blocks the producer: both sides are backed
// by unbounded FIFO mailboxes, so there is no backpressure, retry or queue
// limit at this layer.
package channel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	fgdebug "github.com/vanderheijden86/forcegraph/pkg/debug"
)

// ErrTerminated is returned by Send after Terminate.
var ErrTerminated = errors.New("channel terminated")

// shutdownTimeout bounds how long Terminate waits for the worker to return.
const shutdownTimeout = 5 * time.Second

// WorkerFunc is the body of a worker. It must return when ctx is done.
// post never blocks.
type WorkerFunc[In, Out any] func(ctx context.Context, inbox <-chan In, post func(Out))

// Channel is a running worker plus its two mailboxes.
type Channel[In, Out any] struct {
	name string

	ctx    context.Context
	cancel context.CancelFunc

	in    *mailbox[In]
	out   *mailbox[Out]
	inbox chan In

	handler      atomic.Pointer[func(Out)]
	handlerReady chan struct{}
	readyOnce    sync.Once

	terminated atomic.Bool
	workerDone chan struct{}
	panicErr   atomic.Pointer[error]
}

// Spawn starts run on its own goroutine and returns the channel to talk to it.
func Spawn[In, Out any](name string, run WorkerFunc[In, Out]) *Channel[In, Out] {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel[In, Out]{
		name:         name,
		ctx:          ctx,
		cancel:       cancel,
		in:           newMailbox[In](),
		out:          newMailbox[Out](),
		inbox:        make(chan In),
		handlerReady: make(chan struct{}),
		workerDone:   make(chan struct{}),
	}

	go c.pump()
	go c.deliver()
	go func() {
		defer close(c.workerDone)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("worker %s panic: %v\n%s", name, r, debug.Stack())
				c.panicErr.Store(&err)
				fgdebug.Log("%v", err)
			}
		}()
		run(ctx, c.inbox, c.post)
	}()

	fgdebug.Log("channel %s: spawned", name)
	return c
}

// Send queues msg for the worker.
func (c *Channel[In, Out]) Send(msg In) error {
	if c.terminated.Load() {
		return ErrTerminated
	}
	c.in.push(msg)
	return nil
}

// Subscribe installs h as the handler for every message the worker posts,
// replacing any previous handler. Messages posted before the first Subscribe
// are held and delivered once a handler exists.
func (c *Channel[In, Out]) Subscribe(h func(Out)) {
	if h == nil {
		return
	}
	c.handler.Store(&h)
	c.readyOnce.Do(func() { close(c.handlerReady) })
}

// Terminate stops the worker and releases its goroutines. Idempotent.
// Messages still queued in either direction are discarded.
func (c *Channel[In, Out]) Terminate() {
	if !c.terminated.CompareAndSwap(false, true) {
		return
	}
	c.cancel()
	select {
	case <-c.workerDone:
	case <-time.After(shutdownTimeout):
		fgdebug.Log("channel %s: worker did not stop within %v", c.name, shutdownTimeout)
	}
	fgdebug.Log("channel %s: terminated", c.name)
}

// Done is closed when the worker function has returned.
func (c *Channel[In, Out]) Done() <-chan struct{} {
	return c.workerDone
}

// Err returns the recovered panic of the worker, if it crashed.
func (c *Channel[In, Out]) Err() error {
	if p := c.panicErr.Load(); p != nil {
		return *p
	}
	return nil
}

// Name returns the worker name given to Spawn.
func (c *Channel[In, Out]) Name() string {
	return c.name
}

func (c *Channel[In, Out]) post(msg Out) {
	if c.ctx.Err() != nil {
		return
	}
	c.out.push(msg)
}

// pump moves queued sends into the worker's inbox one at a time.
func (c *Channel[In, Out]) pump() {
	for {
		msg, ok := c.in.pop(c.ctx)
		if !ok {
			return
		}
		select {
		case c.inbox <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

// deliver hands posted messages to the current handler, in order.
func (c *Channel[In, Out]) deliver() {
	select {
	case <-c.handlerReady:
	case <-c.ctx.Done():
		return
	}
	for {
		msg, ok := c.out.pop(c.ctx)
		if !ok {
			return
		}
		if h := c.handler.Load(); h != nil {
			(*h)(msg)
		}
	}
}

// mailbox is an unbounded FIFO with a wake-up signal for one consumer.
type mailbox[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{wake: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) pop(ctx context.Context) (T, bool) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			v := m.items[0]
			var zero T
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return v, true
		}
		m.mu.Unlock()

		select {
		case <-m.wake:
		case <-ctx.Done():
			var zero T
			return zero, false
		}
	}
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
