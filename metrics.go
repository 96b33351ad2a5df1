package gcarena

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    allocCounter   *prometheus.CounterVec
//	    sweepHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSweep(mode gcarena.SweepMode, res gcarena.SweepResult) {
//	    p.sweepHistogram.Observe(res.Duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordAllocation is called after each successful allocation.
	// slow reports whether the allocation left the free-list fast path.
	RecordAllocation(class SizeClass, slow bool)

	// RecordAllocationFailure is called when an allocation returns an error.
	RecordAllocationFailure(class SizeClass, err error)

	// RecordArenaCreated is called whenever the heap obtains a new arena.
	RecordArenaCreated()

	// RecordArenasDestroyed is called when n empty arenas are handed back.
	RecordArenasDestroyed(n int)

	// RecordSweep is called after each completed sweep.
	RecordSweep(mode SweepMode, res SweepResult)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocation(SizeClass, bool)         {}
func (NoopMetricsCollector) RecordAllocationFailure(SizeClass, error) {}
func (NoopMetricsCollector) RecordArenaCreated()                      {}
func (NoopMetricsCollector) RecordArenasDestroyed(int)                {}
func (NoopMetricsCollector) RecordSweep(SweepMode, SweepResult)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocationCount      atomic.Int64
	SlowAllocationCount  atomic.Int64
	AllocationFailures   atomic.Int64
	ArenasCreated        atomic.Int64
	ArenasDestroyed      atomic.Int64
	SweepCount           atomic.Int64
	BackgroundSweepCount atomic.Int64
	CancelledSweepCount  atomic.Int64
	SweepTotalNanos      atomic.Int64
	ThingsFreed          atomic.Int64
}

// RecordAllocation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocation(_ SizeClass, slow bool) {
	b.AllocationCount.Add(1)
	if slow {
		b.SlowAllocationCount.Add(1)
	}
}

// RecordAllocationFailure implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocationFailure(SizeClass, error) {
	b.AllocationFailures.Add(1)
}

// RecordArenaCreated implements MetricsCollector.
func (b *BasicMetricsCollector) RecordArenaCreated() {
	b.ArenasCreated.Add(1)
}

// RecordArenasDestroyed implements MetricsCollector.
func (b *BasicMetricsCollector) RecordArenasDestroyed(n int) {
	b.ArenasDestroyed.Add(int64(n))
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(mode SweepMode, res SweepResult) {
	b.SweepCount.Add(1)
	if mode == SweepBackground {
		b.BackgroundSweepCount.Add(1)
	}
	if res.Cancelled {
		b.CancelledSweepCount.Add(1)
	}
	b.SweepTotalNanos.Add(res.Duration.Nanoseconds())
	b.ThingsFreed.Add(int64(res.Freed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocationCount:      b.AllocationCount.Load(),
		SlowAllocationCount:  b.SlowAllocationCount.Load(),
		AllocationFailures:   b.AllocationFailures.Load(),
		ArenasCreated:        b.ArenasCreated.Load(),
		ArenasDestroyed:      b.ArenasDestroyed.Load(),
		SweepCount:           b.SweepCount.Load(),
		BackgroundSweepCount: b.BackgroundSweepCount.Load(),
		CancelledSweepCount:  b.CancelledSweepCount.Load(),
		SweepAvg:             b.getAvgSweep(),
		ThingsFreed:          b.ThingsFreed.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSweep() time.Duration {
	count := b.SweepCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(b.SweepTotalNanos.Load() / count)
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocationCount      int64
	SlowAllocationCount  int64
	AllocationFailures   int64
	ArenasCreated        int64
	ArenasDestroyed      int64
	SweepCount           int64
	BackgroundSweepCount int64
	CancelledSweepCount  int64
	SweepAvg             time.Duration
	ThingsFreed          int64
}
