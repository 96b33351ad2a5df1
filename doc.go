// Package gcarena provides an arena-based, size-segregated allocator with
// mark/sweep reclamation for runtimes written in Go.
//
// Memory is handed out in fixed-size things grouped into size classes. Each
// class keeps a chain of arenas; allocation bumps through the free things of
// one arena at a time and only takes a lock when that arena is exhausted.
// Arenas are carved out of mmap'd chunks, so the Go garbage collector never
// scans them.
//
// # Quick Start
//
//	h, _ := gcarena.New()
//	defer h.Close()
//
//	t, _ := h.Allocate(gcarena.Size32)
//	copy(t.Bytes(), "hello")
//
// # Collection
//
// The caller decides what is live. Mark every reachable thing, then Collect:
//
//	h.Mark(root)
//	h.Collect(ctx, gcarena.SweepForeground) // sweep now
//	h.Collect(ctx, gcarena.SweepBackground) // sweep on a background worker
//	h.WaitSweep(ctx)
//
// A background sweep queues every size class at once. Allocating from a
// class that is still being swept blocks until that class has been merged
// back; other classes allocate normally. At most one background sweep runs at
// a time, and further Collect calls while it runs are folded into it.
//
// # Memory
//
// Arenas without survivors go back to the chunk pool after each sweep. Fully
// empty chunks beyond WithKeepEmptyChunks are unmapped, throttled by
// WithDecommitRate. WithMemoryLimit caps the total mapped size; allocations
// beyond it fail with ErrOutOfMemory.
//
// # Observability
//
// Use WithLogger for structured logging (log/slog) and WithMetricsCollector to
// hook counters into a monitoring system. Stats and Verify inspect the heap
// directly.
package gcarena
