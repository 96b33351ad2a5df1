// Package resource implements the Controller for global limits shared by the heap.
//
// The Controller provides centralized management of three resource types:
//
//   - Memory: Track and limit chunk memory (non-blocking, fail-fast)
//   - Concurrency: Limit background workers (sweeping, chunk prefetch)
//   - Decommit: Rate-limit how fast empty chunks are returned to the OS
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                         Controller                          │
//	├─────────────────┬─────────────────┬─────────────────────────┤
//	│  Memory Limit   │  Background     │  Decommit Limiter       │
//	│  (fail-fast)    │  Workers (sem)  │  (token bucket)         │
//	├─────────────────┼─────────────────┼─────────────────────────┤
//	│  AcquireMemory  │  TryGo          │  AllowDecommit          │
//	│  ReleaseMemory  │  BusyWorkers    │                         │
//	│  MemoryUsage    │  Wait           │                         │
//	└─────────────────┴─────────────────┴─────────────────────────┘
//
// # Background Workers
//
// TryGo is the worker pool seen by background tasks: it either starts the work
// on a goroutine holding a worker slot or reports that no slot is free, in
// which case the task runs the work synchronously:
//
//	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 1})
//	if !rc.TryGo(work) {
//	    work()
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully. A nil Controller imposes no
// limits and has no background slots.
package resource
