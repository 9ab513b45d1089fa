package document

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Debouncer runs the last triggered function once triggers stop for a while.
type Debouncer struct {
	clock clock.WithDelayedExecution
	delay time.Duration

	mu    sync.Mutex
	timer clock.Timer
}

// NewDebouncer returns a debouncer with the given quiet period. A delay of
// zero or less runs each trigger immediately.
func NewDebouncer(c clock.WithDelayedExecution, delay time.Duration) *Debouncer {
	return &Debouncer{clock: c, delay: delay}
}

// Trigger schedules fn, replacing any function still waiting.
func (d *Debouncer) Trigger(fn func()) {
	if d.delay <= 0 {
		fn()
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, fn)
}

// Cancel drops a waiting function.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
