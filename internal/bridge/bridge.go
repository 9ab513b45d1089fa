// Package bridge connects an embedding host to the layout engine and the
// neighbour service over a pair of byte streams carrying JSON lines.
//
// Inbound lines are decoded with pkg/protocol and forwarded; replies, ticks and
// neighbour maps are written back one message per line. A line that fails to
// decode is answered with an error message and does not stop the bridge.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/vanderheijden86/forcegraph/pkg/channel"
	"github.com/vanderheijden86/forcegraph/pkg/layout"
	"github.com/vanderheijden86/forcegraph/pkg/model"
	"github.com/vanderheijden86/forcegraph/pkg/neighbors"
	"github.com/vanderheijden86/forcegraph/pkg/protocol"
)

// maxLine bounds a single inbound message.
const maxLine = 16 << 20

// Engine is the part of the layout engine the bridge drives.
type Engine interface {
	Send(cmd layout.Command) error
	NodeAt(ctx context.Context, pos r2.Vec, scale float64, timeout time.Duration) int
	Ticks() <-chan layout.TickMsg
}

// Neighbours computes adjacency maps. Submit registers a request before it
// returns, so the latest call is the one that resolves.
type Neighbours interface {
	Submit(edges []model.Edge) *neighbors.Pending
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithQueryTimeout sets the deadline for nodeAt requests.
func WithQueryTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithEventLogger replaces the bridge's event logger.
func WithEventLogger(l *channel.EventLogger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// Bridge forwards JSON-lines traffic between a host and the workers.
type Bridge struct {
	engine  Engine
	nb      Neighbours
	timeout time.Duration
	log     *channel.EventLogger
}

// New returns a bridge over engine and nb. nb may be nil, in which case
// neighbours requests are answered with an error message.
func New(engine Engine, nb Neighbours, opts ...Option) *Bridge {
	b := &Bridge{
		engine:  engine,
		nb:      nb,
		timeout: layout.DefaultQueryTimeout,
		log:     channel.NewEventLogger("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type line struct {
	data []byte
	err  error
}

// Run serves r and w until r ends, ctx is cancelled, or writing fails. It
// returns nil at end of input once every outstanding reply has been written.
//
// Reads are not interruptible: after cancellation one goroutine may stay
// blocked in r until it yields a line or EOF.
func (b *Bridge) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)
	produce, pctx := errgroup.WithContext(ctx)

	out := make(chan any, 16)
	queries := make(chan layout.NodeAtCmd, 16)
	pending := make(chan *neighbors.Pending, 16)
	lines := readLines(pctx, r)
	done := make(chan struct{})

	produce.Go(func() error {
		defer close(queries)
		defer close(pending)
		for {
			select {
			case <-pctx.Done():
				return pctx.Err()
			case l, ok := <-lines:
				if !ok {
					b.log.Event(channel.LogLevelInfo, "input_closed", nil)
					return nil
				}
				if l.err != nil {
					return fmt.Errorf("bridge: read input: %w", l.err)
				}
				if err := b.handle(pctx, l.data, queries, pending, out); err != nil {
					return err
				}
			}
		}
	})

	// Queries are answered one by one so replies keep request order.
	produce.Go(func() error {
		for q := range queries {
			idx := b.engine.NodeAt(pctx, q.Pos, q.Scale, b.timeout)
			if !emit(pctx, out, layout.NodeAtMsg{Seq: q.Seq, NodeIdx: idx}) {
				return pctx.Err()
			}
		}
		return nil
	})

	// Neighbour requests are awaited in submission order. A request that a
	// later one superseded returns at once, so the queue never stalls.
	produce.Go(func() error {
		for p := range pending {
			m, err := p.Wait(pctx)
			switch {
			case errors.Is(err, neighbors.ErrSuperseded):
				b.log.Event(channel.LogLevelDebug, "neighbours_superseded", nil)
				continue
			case err != nil && pctx.Err() != nil:
				return pctx.Err()
			case err != nil:
				b.log.Event(channel.LogLevelWarn, "neighbours_failed", map[string]any{"error": err.Error()})
				continue
			}
			if !emit(pctx, out, protocol.NeighboursMsg{Neighbours: m}) {
				return pctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(done)
		return produce.Wait()
	})
	g.Go(func() error {
		return b.write(ctx, w, out, done)
	})
	return g.Wait()
}

func (b *Bridge) handle(ctx context.Context, data []byte, queries chan<- layout.NodeAtCmd, pending chan<- *neighbors.Pending, out chan<- any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		b.log.Event(channel.LogLevelWarn, "decode_failed", map[string]any{"error": err.Error()})
		emit(ctx, out, protocol.ErrorMsg{Err: err.Error()})
		return nil
	}

	switch c := cmd.(type) {
	case layout.NodeAtCmd:
		select {
		case queries <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	case protocol.NeighboursRequest:
		if b.nb == nil {
			emit(ctx, out, protocol.ErrorMsg{Err: "neighbours: no neighbour service"})
			return nil
		}
		select {
		case pending <- b.nb.Submit(c.Edges):
		case <-ctx.Done():
			return ctx.Err()
		}
	default:
		if err := b.engine.Send(c); err != nil {
			return fmt.Errorf("bridge: forward %s: %w", c.Command(), err)
		}
		b.log.Event(channel.LogLevelTrace, "forwarded", map[string]any{"command": c.Command()})
	}
	return nil
}

func (b *Bridge) write(ctx context.Context, w io.Writer, out <-chan any, done <-chan struct{}) error {
	bw := bufio.NewWriter(w)
	put := func(msg any) error {
		data, err := protocol.EncodeMessage(msg)
		if err != nil {
			return err
		}
		data = append(data, '\n')
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("bridge: write output: %w", err)
		}
		return bw.Flush()
	}

	ticks := b.engine.Ticks()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-out:
			if err := put(msg); err != nil {
				return err
			}
		case t := <-ticks:
			if err := put(t); err != nil {
				return err
			}
		case <-done:
			for {
				select {
				case msg := <-out:
					if err := put(msg); err != nil {
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

func readLines(ctx context.Context, r io.Reader) <-chan line {
	ch := make(chan line)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLine)
		for sc.Scan() {
			l := line{data: append([]byte(nil), sc.Bytes()...)}
			select {
			case ch <- l:
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case ch <- line{err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}

func emit(ctx context.Context, out chan<- any, msg any) bool {
	select {
	case out <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
