package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vanderheijden86/forcegraph/pkg/channel"
	"github.com/vanderheijden86/forcegraph/pkg/layout"
	"github.com/vanderheijden86/forcegraph/pkg/model"
	"github.com/vanderheijden86/forcegraph/pkg/neighbors"
	"github.com/vanderheijden86/forcegraph/pkg/protocol"
)

// host drives a bridge through pipes the way an embedding process would.
type host struct {
	in   *io.PipeWriter
	msgs chan any
	errc chan error
}

func startHost(t *testing.T, b *Bridge) *host {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	h := &host{in: inW, msgs: make(chan any, 1024), errc: make(chan error, 1)}

	go func() {
		err := b.Run(context.Background(), inR, outW)
		outW.Close()
		h.errc <- err
	}()
	go func() {
		defer close(h.msgs)
		sc := bufio.NewScanner(outR)
		for sc.Scan() {
			msg, err := protocol.DecodeMessage(sc.Bytes())
			if err != nil {
				t.Errorf("bridge wrote undecodable line %q: %v", sc.Text(), err)
				continue
			}
			h.msgs <- msg
		}
	}()
	return h
}

func (h *host) send(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if _, err := io.WriteString(h.in, l+"\n"); err != nil {
			t.Fatalf("write %q: %v", l, err)
		}
	}
}

// next returns the next message that is not a tick.
func (h *host) next(t *testing.T) any {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case m, ok := <-h.msgs:
			if !ok {
				t.Fatal("bridge output closed")
			}
			if _, tick := m.(layout.TickMsg); tick {
				continue
			}
			return m
		case <-timeout:
			t.Fatal("no reply from bridge")
		}
	}
}

func quietLogger() *channel.EventLogger {
	return channel.NewEventLogger("bridge").WithLevel(channel.LogLevelNone)
}

func TestBridgeRoundTrip(t *testing.T) {
	eng := layout.New(layout.WithFrameInterval(0))
	defer eng.Close()
	nb := neighbors.New()
	defer nb.Destroy()

	h := startHost(t, New(eng, nb, WithEventLogger(quietLogger())))

	// Nodes alone leave the engine inert, so node 0 stays at its seed position.
	h.send(t,
		`{"command":"nodes","nodes":[{"r":5},{"r":5},{"r":5}],"alpha":1}`,
		`{"command":"nodeAt","seq":1,"pos":{"x":7.07,"y":0}}`,
		`{"command":"nodeAt","seq":2,"pos":{"x":5000,"y":5000}}`,
	)
	if got := h.next(t); got != (layout.NodeAtMsg{Seq: 1, NodeIdx: 0}) {
		t.Errorf("first reply = %#v", got)
	}
	if got := h.next(t); got != (layout.NodeAtMsg{Seq: 2, NodeIdx: model.NoNode}) {
		t.Errorf("second reply = %#v", got)
	}

	h.send(t, `{"command":"neighbours","edges":[{"source":0,"target":1},{"source":1,"target":2}]}`)
	got, ok := h.next(t).(protocol.NeighboursMsg)
	if !ok {
		t.Fatalf("expected neighbours, got %#v", got)
	}
	if len(got.Neighbours) != 3 || len(got.Neighbours[1]) != 2 {
		t.Errorf("neighbours = %v", got.Neighbours)
	}

	h.send(t, `this is not json`)
	if e, ok := h.next(t).(protocol.ErrorMsg); !ok || !strings.Contains(e.Err, "malformed") {
		t.Errorf("garbage line answered with %#v", e)
	}

	// Alpha zero settles in one step and yields exactly one tick.
	h.send(t, `{"command":"edges","edges":[{"source":0,"target":1,"distance":30}],"alpha":0}`)
	timeout := time.After(3 * time.Second)
wait:
	for {
		select {
		case m := <-h.msgs:
			if tick, ok := m.(layout.TickMsg); ok {
				if tick.Progress != 0 || len(tick.Nodes) != 3 {
					t.Errorf("tick = %+v", tick)
				}
				break wait
			}
		case <-timeout:
			t.Fatal("no tick after edges")
		}
	}

	h.in.Close()
	select {
	case err := <-h.errc:
		if err != nil {
			t.Errorf("Run = %v, want nil at end of input", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("bridge did not stop at end of input")
	}
}

func TestBridgeUnknownCommandContinues(t *testing.T) {
	eng := layout.New(layout.WithFrameInterval(0))
	defer eng.Close()
	h := startHost(t, New(eng, nil, WithEventLogger(quietLogger())))

	h.send(t, `{"command":"teleport"}`, `{"command":"neighbours","edges":[]}`)
	if e, ok := h.next(t).(protocol.ErrorMsg); !ok || !strings.Contains(e.Err, "unknown command") {
		t.Errorf("unknown command answered with %#v", e)
	}
	if e, ok := h.next(t).(protocol.ErrorMsg); !ok || !strings.Contains(e.Err, "no neighbour service") {
		t.Errorf("neighbours without a service answered with %#v", e)
	}
	h.in.Close()
	if err := <-h.errc; err != nil {
		t.Errorf("Run = %v", err)
	}
}

func TestBridgeStopsWhenEngineClosed(t *testing.T) {
	eng := layout.New()
	eng.Close()

	err := New(eng, nil, WithEventLogger(quietLogger())).Run(context.Background(),
		strings.NewReader(`{"command":"enabled","enabled":true,"alpha":1}`+"\n"), io.Discard)
	if !errors.Is(err, channel.ErrTerminated) {
		t.Errorf("Run = %v, want ErrTerminated", err)
	}
}

type supersededNeighbours struct{}

func (supersededNeighbours) Submit([]model.Edge) *neighbors.Pending {
	return neighbors.Resolved(nil, neighbors.ErrSuperseded)
}

func TestBridgeDropsSupersededNeighbours(t *testing.T) {
	eng := layout.New()
	defer eng.Close()

	var out strings.Builder
	err := New(eng, supersededNeighbours{}, WithEventLogger(quietLogger())).Run(context.Background(),
		strings.NewReader(`{"command":"neighbours","edges":[{"source":0,"target":1}]}`+"\n"), &out)
	if err != nil {
		t.Fatalf("Run = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("superseded request produced output %q", out.String())
	}
}

func TestBridgeCancelled(t *testing.T) {
	eng := layout.New()
	defer eng.Close()

	inR, inW := io.Pipe()
	defer inW.Close()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- New(eng, nil, WithEventLogger(quietLogger())).Run(ctx, inR, io.Discard) }()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

// recordingNeighbours remembers the order requests were submitted in.
type recordingNeighbours struct {
	mu    sync.Mutex
	sizes []int
}

func (r *recordingNeighbours) Submit(edges []model.Edge) *neighbors.Pending {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, len(edges))
	return neighbors.Resolved(neighbors.Adjacency(edges), nil)
}

const twoNeighbourRequests = `{"command":"neighbours","edges":[{"source":0,"target":1}]}` + "\n" +
	`{"command":"neighbours","edges":[{"source":0,"target":1},{"source":1,"target":2}]}` + "\n"

func TestBridgeSubmitsNeighboursInLineOrder(t *testing.T) {
	prev := runtime.GOMAXPROCS(max(runtime.GOMAXPROCS(0), 4))
	defer runtime.GOMAXPROCS(prev)

	eng := layout.New()
	defer eng.Close()

	for i := 0; i < 300; i++ {
		nb := &recordingNeighbours{}
		var out strings.Builder
		if err := New(eng, nb, WithEventLogger(quietLogger())).Run(context.Background(),
			strings.NewReader(twoNeighbourRequests), &out); err != nil {
			t.Fatalf("Run = %v", err)
		}
		if len(nb.sizes) != 2 || nb.sizes[0] != 1 || nb.sizes[1] != 2 {
			t.Fatalf("run %d: submitted edge counts %v, want [1 2]", i, nb.sizes)
		}
		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) != 2 {
			t.Fatalf("run %d: wrote %q", i, out.String())
		}
	}
}

func TestBridgeLatestNeighboursWin(t *testing.T) {
	prev := runtime.GOMAXPROCS(max(runtime.GOMAXPROCS(0), 4))
	defer runtime.GOMAXPROCS(prev)

	eng := layout.New()
	defer eng.Close()

	for i := 0; i < 300; i++ {
		nb := neighbors.New(neighbors.WithEventLogger(channel.NewEventLogger("neighbors").WithLevel(channel.LogLevelNone)))
		var out strings.Builder
		err := New(eng, nb, WithEventLogger(quietLogger())).Run(context.Background(),
			strings.NewReader(twoNeighbourRequests), &out)
		nb.Destroy()
		if err != nil {
			t.Fatalf("Run = %v", err)
		}

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		last, err := protocol.DecodeMessage([]byte(lines[len(lines)-1]))
		if err != nil {
			t.Fatalf("run %d: decode %q: %v", i, lines[len(lines)-1], err)
		}
		msg, ok := last.(protocol.NeighboursMsg)
		if !ok {
			t.Fatalf("run %d: last line is %#v", i, last)
		}
		if len(msg.Neighbours[2]) != 1 || len(msg.Neighbours[1]) != 2 {
			t.Fatalf("run %d: last neighbours %v come from the older edge set", i, msg.Neighbours)
		}
	}
}
