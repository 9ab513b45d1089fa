// Package metrics provides in-process instrumentation for fg.
//
// Timing metrics cover the hot paths (integrator steps, spatial queries,
// neighbour computation, rendering); counters track events worth watching
// in a long-running widget (ticks posted, query timeouts, superseded
// neighbour requests). Collection uses atomics and is enabled by default;
// set FG_METRICS=0 to disable it.
//
//	func (s *Simulation) Step() Tick {
//	    defer metrics.Timer(metrics.SimulationStep)()
//	    ...
//	}
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

var enabled atomic.Bool

func init() {
	enabled.Store(os.Getenv("FG_METRICS") != "0")
}

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) {
	enabled.Store(e)
}

// TimingMetric tracks timing statistics for a named operation.
type TimingMetric struct {
	name    string
	count   atomic.Int64
	totalNs atomic.Int64
	maxNs   atomic.Int64
	minNs   atomic.Int64 // 0 means not set
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record records a single timing measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !enabled.Load() {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.totalNs.Add(ns)

	for {
		old := m.maxNs.Load()
		if ns <= old || m.maxNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.minNs.Load()
		if old != 0 && ns >= old {
			break
		}
		if m.minNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string { return m.name }

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 { return m.count.Load() }

// Stats returns all timing statistics at once.
func (m *TimingMetric) Stats() TimingStats {
	count := m.count.Load()
	totalNs := m.totalNs.Load()
	var avgNs int64
	if count > 0 {
		avgNs = totalNs / count
	}
	return TimingStats{
		Name:    m.name,
		Count:   count,
		TotalMs: float64(totalNs) / 1e6,
		AvgMs:   float64(avgNs) / 1e6,
		MaxMs:   float64(m.maxNs.Load()) / 1e6,
		MinMs:   float64(m.minNs.Load()) / 1e6,
	}
}

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.totalNs.Store(0)
	m.maxNs.Store(0)
	m.minNs.Store(0)
}

// TimingStats holds a snapshot of timing statistics.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer returns a function that records elapsed time when called.
func Timer(m *TimingMetric) func() {
	if !enabled.Load() || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// Counter is a monotonically increasing event count.
type Counter struct {
	name string
	n    atomic.Int64
}

func newCounter(name string) *Counter {
	return &Counter{name: name}
}

// Inc adds one to the counter.
func (c *Counter) Inc() {
	if !enabled.Load() {
		return
	}
	c.n.Add(1)
}

// Value returns the current count.
func (c *Counter) Value() int64 { return c.n.Load() }

// Name returns the counter name.
func (c *Counter) Name() string { return c.name }

// Reset sets the counter back to zero.
func (c *Counter) Reset() { c.n.Store(0) }

// Global metrics.
var (
	SimulationStep  = newTimingMetric("simulation_step")
	NodeAtQuery     = newTimingMetric("node_at_query")
	NeighborCompute = newTimingMetric("neighbor_compute")
	DocumentLoad    = newTimingMetric("document_load")
	UIRender        = newTimingMetric("ui_render")
	SnapshotExport  = newTimingMetric("snapshot_export")

	TicksPosted        = newCounter("ticks_posted")
	QueriesTimedOut    = newCounter("queries_timed_out")
	NeighborSuperseded = newCounter("neighbor_superseded")
)

// AllTimingMetrics returns all registered timing metrics.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{
		SimulationStep,
		NodeAtQuery,
		NeighborCompute,
		DocumentLoad,
		UIRender,
		SnapshotExport,
	}
}

// AllCounters returns all registered counters.
func AllCounters() []*Counter {
	return []*Counter{TicksPosted, QueriesTimedOut, NeighborSuperseded}
}

// ResetAll resets every metric and counter.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, c := range AllCounters() {
		c.Reset()
	}
}

// AllTimingStats returns stats for timing metrics that have data.
func AllTimingStats() []TimingStats {
	all := AllTimingMetrics()
	stats := make([]TimingStats, 0, len(all))
	for _, m := range all {
		if m.Count() > 0 {
			stats = append(stats, m.Stats())
		}
	}
	return stats
}
