package neighbors

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/vanderheijden86/forcegraph/pkg/channel"
	"github.com/vanderheijden86/forcegraph/pkg/model"
)

func sameMembers(a, b []int) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func TestAdjacency(t *testing.T) {
	tests := []struct {
		name  string
		edges []model.Edge
		want  Map
	}{
		{
			name:  "chain",
			edges: []model.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 2}},
			want:  Map{0: {1}, 1: {2, 0}, 2: {1}},
		},
		{
			name:  "parallel edges keep duplicates",
			edges: []model.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 0}},
			want:  Map{0: {1, 1}, 1: {0, 0}},
		},
		{
			name:  "self loop",
			edges: []model.Edge{{Source: 3, Target: 3}},
			want:  Map{3: {3, 3}},
		},
		{
			name: "empty",
			want: Map{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Adjacency(tt.edges)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d keys, want %d: %v", len(got), len(tt.want), got)
			}
			for id, want := range tt.want {
				if !sameMembers(got[id], want) {
					t.Errorf("neighbours of %d = %v, want %v", id, got[id], want)
				}
			}
		})
	}
}

func newQuietService(opts ...Option) *Service {
	return New(append([]Option{WithEventLogger(channel.NewEventLogger("neighbors").WithLevel(channel.LogLevelNone))}, opts...)...)
}

func TestComputeResolves(t *testing.T) {
	s := newQuietService()
	defer s.Destroy()

	got, err := s.Compute(context.Background(), []model.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 2}})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !sameMembers(got[1], []int{0, 2}) || !sameMembers(got[0], []int{1}) || !sameMembers(got[2], []int{1}) {
		t.Errorf("unexpected adjacency %v", got)
	}
}

// gated makes the worker wait for a signal before each computation.
func gated(s *Service) chan struct{} {
	gate := make(chan struct{})
	s.adjacency = func(edges []model.Edge) Map {
		<-gate
		return Adjacency(edges)
	}
	return gate
}

func inFlight(s *Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func waitInFlight(t *testing.T, s *Service, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for inFlight(s) != n {
		if time.Now().After(deadline) {
			t.Fatalf("in-flight = %d, want %d", inFlight(s), n)
		}
		time.Sleep(time.Millisecond)
	}
}

type result struct {
	m   Map
	err error
}

func TestComputeSupersedesEarlierCaller(t *testing.T) {
	s := newQuietService()
	defer s.Destroy()
	gate := gated(s)

	first := make(chan result, 1)
	go func() {
		m, err := s.Compute(context.Background(), []model.Edge{{Source: 5, Target: 6}})
		first <- result{m, err}
	}()
	waitInFlight(t, s, 1)

	second := make(chan result, 1)
	go func() {
		m, err := s.Compute(context.Background(), []model.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 2}})
		second <- result{m, err}
	}()

	select {
	case r := <-first:
		if !errors.Is(r.err, ErrSuperseded) {
			t.Fatalf("first caller got %v, %v; want ErrSuperseded", r.m, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first caller was not rejected")
	}
	waitInFlight(t, s, 2)

	// The first result drains one request and must not reach anyone.
	gate <- struct{}{}
	select {
	case r := <-second:
		t.Fatalf("second caller resolved with the stale result %v", r.m)
	case <-time.After(50 * time.Millisecond):
	}

	gate <- struct{}{}
	select {
	case r := <-second:
		if r.err != nil {
			t.Fatalf("second caller: %v", r.err)
		}
		want := Map{0: {1}, 1: {2, 0}, 2: {1}}
		for id, ns := range want {
			if !sameMembers(r.m[id], ns) {
				t.Errorf("neighbours of %d = %v, want %v", id, r.m[id], ns)
			}
		}
		if _, stale := r.m[5]; stale {
			t.Error("result contains the superseded edge set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never resolved")
	}
}

func TestDestroyRejectsWaiter(t *testing.T) {
	s := newQuietService()
	gate := gated(s)
	defer close(gate)

	done := make(chan error, 1)
	go func() {
		_, err := s.Compute(context.Background(), []model.Edge{{Source: 0, Target: 1}})
		done <- err
	}()
	waitInFlight(t, s, 1)

	go s.Destroy()
	select {
	case err := <-done:
		if !errors.Is(err, ErrDestroyed) {
			t.Errorf("waiter got %v, want ErrDestroyed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by Destroy")
	}

	if _, err := s.Compute(context.Background(), nil); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Compute after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestComputeContextCancelled(t *testing.T) {
	s := newQuietService()
	defer s.Destroy()
	gate := gated(s)
	defer close(gate)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Compute(ctx, []model.Edge{{Source: 0, Target: 1}})
		done <- err
	}()
	waitInFlight(t, s, 1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller not released")
	}
}

func TestSubmitOrderDecidesNewest(t *testing.T) {
	s := newQuietService()
	defer s.Destroy()
	gate := gated(s)

	older := s.Submit([]model.Edge{{Source: 0, Target: 1}})
	newer := s.Submit([]model.Edge{{Source: 0, Target: 1}, {Source: 1, Target: 2}})

	// The older request is rejected at registration, before any result exists.
	if m, err := older.Wait(context.Background()); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("older request got %v, %v; want ErrSuperseded", m, err)
	}

	go func() {
		gate <- struct{}{}
		gate <- struct{}{}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := newer.Wait(ctx)
	if err != nil {
		t.Fatalf("newer request: %v", err)
	}
	if !sameMembers(m[1], []int{0, 2}) || !sameMembers(m[2], []int{1}) {
		t.Errorf("newer request resolved with %v", m)
	}
}

func TestSubmitAfterDestroy(t *testing.T) {
	s := newQuietService()
	s.Destroy()
	if _, err := s.Submit(nil).Wait(context.Background()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Submit after Destroy = %v, want ErrDestroyed", err)
	}
}

func TestResolved(t *testing.T) {
	m, err := Resolved(Map{0: {1}}, nil).Wait(context.Background())
	if err != nil || !sameMembers(m[0], []int{1}) {
		t.Errorf("Resolved = %v, %v", m, err)
	}
}
