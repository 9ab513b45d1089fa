package layout

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"k8s.io/utils/clock"

	"github.com/vanderheijden86/forcegraph/pkg/channel"
	"github.com/vanderheijden86/forcegraph/pkg/metrics"
)

// WorkerError wraps a failure recovered inside the simulation worker.
type WorkerError struct {
	Phase string    // "step" or "command:<tag>"
	Cause error     // The underlying error
	Time  time.Time // When the error occurred
}

func (e WorkerError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Cause)
}

func (e WorkerError) Unwrap() error {
	return e.Cause
}

// worker owns a Simulation and drives it from the command inbox.
type worker struct {
	sim   *Simulation
	clock clock.WithTicker
	frame time.Duration
	log   *channel.EventLogger

	// onError observes recovered failures; used by tests.
	onError func(WorkerError)
}

// run is the channel.WorkerFunc for the simulation. Commands are handled one
// at a time; while the simulation is active a step runs between commands,
// paced by the frame ticker when one is configured.
func (w *worker) run(ctx context.Context, inbox <-chan Command, post func(Message)) {
	w.log.Event(channel.LogLevelInfo, "worker_start", map[string]any{
		"frame_ms": w.frame.Milliseconds(),
	})
	defer w.log.Event(channel.LogLevelInfo, "worker_stop", nil)

	var frames <-chan time.Time
	if w.frame > 0 {
		ticker := w.clock.NewTicker(w.frame)
		defer ticker.Stop()
		frames = ticker.C()
	}

	for {
		if !w.sim.Active() {
			select {
			case <-ctx.Done():
				return
			case cmd := <-inbox:
				w.handle(cmd, post)
			}
			continue
		}

		if frames != nil {
			select {
			case <-ctx.Done():
				return
			case cmd := <-inbox:
				w.handle(cmd, post)
				continue
			case <-frames:
			}
		} else {
			select {
			case <-ctx.Done():
				return
			case cmd := <-inbox:
				w.handle(cmd, post)
				continue
			default:
			}
		}

		w.step(post)
	}
}

func (w *worker) step(post func(Message)) {
	defer func() {
		if r := recover(); r != nil {
			w.sim.Halt()
			w.fail("step", fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()

	done := metrics.Timer(metrics.SimulationStep)
	tick := w.sim.Step()
	done()

	post(TickMsg{Progress: tick.Progress, Nodes: tick.Nodes})
	metrics.TicksPosted.Inc()

	if !w.sim.Active() {
		w.log.Event(channel.LogLevelDebug, "converged", map[string]any{
			"alpha": w.sim.Alpha(),
		})
	}
}

func (w *worker) handle(cmd Command, post func(Message)) {
	if cmd == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.fail("command:"+cmd.Command(), fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()

	var (
		err   error
		alpha float64
	)
	switch c := cmd.(type) {
	case SetNodesCmd:
		err, alpha = w.sim.SetNodes(c.Nodes), c.Alpha
	case SetEdgesCmd:
		err, alpha = w.sim.SetEdges(c.Edges), c.Alpha
	case SetSettingsCmd:
		if err = w.sim.SetSettings(c.Settings); err != nil {
			w.reject(cmd, err)
			return
		}
		alpha = c.Alpha
	case DragCmd:
		if err = w.sim.DragNode(c.NodeIdx, c.Pos); err != nil {
			w.reject(cmd, err)
			return
		}
		alpha = c.Alpha
	case EnabledCmd:
		w.sim.SetEnabled(c.Enabled)
		if !c.Enabled {
			return
		}
		alpha = c.Alpha
	case NodeAtCmd:
		post(NodeAtMsg{Seq: c.Seq, NodeIdx: w.sim.NodeAt(c.Pos, c.Scale)})
		return
	default:
		w.log.Event(channel.LogLevelDebug, "unknown_command", map[string]any{
			"command": cmd.Command(),
		})
		return
	}

	if err != nil {
		// Partially applied (edges dropped at bind); keep going.
		w.log.Event(channel.LogLevelWarn, "command_degraded", map[string]any{
			"command": cmd.Command(),
			"error":   err.Error(),
		})
	}

	if !w.sim.Restart(alpha) {
		w.log.Event(channel.LogLevelTrace, "restart_inert", map[string]any{
			"command": cmd.Command(),
		})
		return
	}
	remaining, total := w.sim.Countdown()
	w.log.Event(channel.LogLevelDebug, "restart", map[string]any{
		"command":   cmd.Command(),
		"alpha":     w.sim.Alpha(),
		"remaining": remaining,
		"total":     total,
	})
}

func (w *worker) reject(cmd Command, err error) {
	w.log.Event(channel.LogLevelWarn, "command_rejected", map[string]any{
		"command": cmd.Command(),
		"error":   err.Error(),
	})
}

func (w *worker) fail(phase string, cause error, stack []byte) {
	we := WorkerError{Phase: phase, Cause: cause, Time: w.clock.Now()}
	w.log.Event(channel.LogLevelError, "worker_panic", map[string]any{
		"phase": phase,
		"panic": cause.Error(),
		"stack": string(stack),
	})
	if w.onError != nil {
		w.onError(we)
	}
}
