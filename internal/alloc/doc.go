// Package alloc implements the per-size-class allocator registry.
//
// For every size class the Registry owns a free-list handle, an arena chain, a
// sweep flag and two queues used while the class is being swept:
//
//	          QueueForBackgroundSweep          SweepQueued            MergeSweptArenas
//	chain ───────────────────────────▶ toSweep ───────────▶ swept ─────────────────────▶ chain
//	  ▲          flag := Running                 (worker, no lock)      flag := Done
//	  │
//	  └── AllocateSlow: TakeNextArena, wait while Running, merge swept, new arena
//
// # Fast path
//
// AllocateFast only touches the class's FreeList, which is owned by the
// mutator. An empty FreeList points at the placeholder arena rather than nil,
// so the fast path never branches on absence: allocating from the placeholder
// simply reports exhaustion.
//
// # Locking
//
// All structural changes happen under the registry mutex. The sweep flag is
// written under the mutex and read atomically. Waiting for a class to finish
// sweeping uses a condition variable on the same mutex.
package alloc
