package alloc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/gcarena/internal/arena"
	"github.com/hupe1980/gcarena/internal/sizeclass"
)

// ErrOutOfMemory is returned when no arena can be obtained for an allocation.
var ErrOutOfMemory = errors.New("alloc: out of memory")

// SweepState is the sweep flag of a size class.
type SweepState uint32

const (
	SweepDone SweepState = iota
	SweepRunning
)

func (s SweepState) String() string {
	if s == SweepRunning {
		return "Running"
	}
	return "Done"
}

// Source supplies and reclaims arena memory.
type Source interface {
	Allocate() (uint32, []byte, error)
	Release(id uint32)
}

// FreeList is the allocation handle of one size class.
//
// The layout is fixed: inline allocation sequences read Arena and Next
// directly and treat a failed Arena.Allocate(Next) as exhaustion. Arena is
// never nil.
type FreeList struct {
	Arena *arena.Arena
	Next  uint
}

// Thing is an allocated thing.
type Thing struct {
	Arena *arena.Arena
	Slot  uint
}

// Bytes returns the thing's memory.
func (t Thing) Bytes() []byte { return t.Arena.Thing(t.Slot) }

// SweepResult summarizes the sweep of one size class.
type SweepResult struct {
	Arenas   int // arenas swept
	Retained int // arenas skipped after cancellation
	Freed    int // things freed
}

// Stats is a snapshot of registry counters.
type Stats struct {
	ArenasCreated   uint64
	ArenasDestroyed uint64
	ArenasSwept     uint64
	ThingsFreed     uint64
}

// ClassStats describes the current state of one size class.
type ClassStats struct {
	Arenas     int
	FreeThings int
	Queued     int
	State      SweepState
}

type classState struct {
	free    FreeList
	chain   arena.Chain
	state   atomic.Uint32
	toSweep arena.List
	swept   arena.List
}

type atomicStats struct {
	ArenasCreated   atomic.Uint64
	ArenasDestroyed atomic.Uint64
	ArenasSwept     atomic.Uint64
	ThingsFreed     atomic.Uint64
}

// Registry owns the arenas of every size class.
type Registry struct {
	mu        sync.Mutex
	sweepDone *sync.Cond
	classes   [sizeclass.Count]classState

	source Source
	logger *slog.Logger
	stats  atomicStats
}

// Option is a configuration option for Registry.
type Option func(*Registry)

// WithLogger sets the logger for the registry.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates a registry that obtains arenas from source.
func New(source Source, opts ...Option) *Registry {
	r := &Registry{source: source}
	r.sweepDone = sync.NewCond(&r.mu)
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	for i := range r.classes {
		r.classes[i].free = FreeList{Arena: arena.Placeholder()}
	}
	return r
}

// FreeList returns the allocation handle of class c for inline allocation.
// Only the mutator may use it.
func (r *Registry) FreeList(c sizeclass.Class) *FreeList {
	return &r.classes[c].free
}

// SweepState returns the sweep flag of class c without locking.
func (r *Registry) SweepState(c sizeclass.Class) SweepState {
	return SweepState(r.classes[c].state.Load())
}

// AllocateFast reserves a thing from the class's free list.
// It returns false when the free list is exhausted.
func (r *Registry) AllocateFast(c sizeclass.Class) (Thing, bool) {
	fl := &r.classes[c].free
	slot, ok := fl.Arena.Allocate(fl.Next)
	if !ok {
		return Thing{}, false
	}
	fl.Next = slot + 1
	return Thing{Arena: fl.Arena, Slot: slot}, true
}

// AllocateSlow refills the free list of class c and reserves a thing.
//
// It claims the next arena with free things from the chain; if there is none
// and the class is being swept in the background it waits for the sweep to be
// merged; then it merges arenas that were swept but not yet merged; and finally
// it requests a new arena from the source. A failing source yields
// ErrOutOfMemory.
func (r *Registry) AllocateSlow(c sizeclass.Class) (Thing, error) {
	if t, ok := r.AllocateFast(c); ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cl := &r.classes[c]
	for {
		if a := cl.chain.TakeNextArena(); a != nil {
			return r.installLocked(cl, a), nil
		}
		if SweepState(cl.state.Load()) == SweepRunning {
			r.sweepDone.Wait()
			continue
		}
		if !cl.swept.IsEmpty() {
			r.mergeLocked(c, cl)
			continue
		}
		break
	}

	a, err := r.newArenaLocked(c)
	if err != nil {
		return Thing{}, err
	}
	a.Claim()
	cl.chain.InsertBeforeCursor(a)
	return r.installLocked(cl, a), nil
}

// QueueForBackgroundSweep moves the class's chain to its sweep queue and sets
// the sweep flag to Running. It reports whether anything was queued.
// It must be called by the mutator, since it purges the class's free list.
func (r *Registry) QueueForBackgroundSweep(c sizeclass.Class) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl := &r.classes[c]
	if SweepState(cl.state.Load()) == SweepRunning {
		return false
	}
	r.purgeLocked(cl)
	if cl.chain.IsEmpty() {
		return false
	}
	queued := cl.chain.TakeAll()
	cl.toSweep.Concat(&queued)
	cl.state.Store(uint32(SweepRunning))
	return true
}

// QueueForForegroundSweep sweeps the class on the calling goroutine and
// rebuilds its chain. A background sweep of the class in progress is waited for first.
func (r *Registry) QueueForForegroundSweep(c sizeclass.Class) SweepResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl := &r.classes[c]
	for SweepState(cl.state.Load()) == SweepRunning {
		r.sweepDone.Wait()
	}
	r.purgeLocked(cl)

	work := cl.chain.TakeAll()
	work.Concat(&cl.toSweep)
	res := r.sweepList(&work, &cl.swept, nil)
	r.mergeLocked(c, cl)
	return res
}

// SweepQueued sweeps the arenas queued for class c. It runs on the background
// worker and holds the lock only to take and hand back the queue. Once
// cancelled reports true the remaining arenas are retained without sweeping.
func (r *Registry) SweepQueued(c sizeclass.Class, cancelled func() bool) SweepResult {
	cl := &r.classes[c]

	r.mu.Lock()
	work := cl.toSweep.TakeAll()
	r.mu.Unlock()

	var swept arena.List
	res := r.sweepList(&work, &swept, cancelled)

	r.mu.Lock()
	cl.swept.Concat(&swept)
	r.mu.Unlock()
	return res
}

// MergeSweptArenas rebuilds the class's chain from its swept arenas, returns
// empty arenas to the source and flips the sweep flag to Done.
func (r *Registry) MergeSweptArenas(c sizeclass.Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeLocked(c, &r.classes[c])
}

// ClassStats returns the current state of class c.
func (r *Registry) ClassStats(c sizeclass.Class) ClassStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl := &r.classes[c]
	s := ClassStats{
		Arenas: cl.chain.Len(),
		Queued: cl.toSweep.Len() + cl.swept.Len(),
		State:  SweepState(cl.state.Load()),
	}
	cl.chain.Walk(func(a *arena.Arena) bool {
		if a.HasFreeThings() {
			s.FreeThings += a.FreeCount()
		}
		return true
	})
	return s
}

// Stats returns the registry's counters.
func (r *Registry) Stats() Stats {
	return Stats{
		ArenasCreated:   r.stats.ArenasCreated.Load(),
		ArenasDestroyed: r.stats.ArenasDestroyed.Load(),
		ArenasSwept:     r.stats.ArenasSwept.Load(),
		ThingsFreed:     r.stats.ThingsFreed.Load(),
	}
}

// Check panics if any chain is malformed or an arena is reachable from more
// than one container.
func (r *Registry) Check() {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := roaring.New()
	visit := func(c sizeclass.Class, where string) func(*arena.Arena) bool {
		return func(a *arena.Arena) bool {
			if !seen.CheckedAdd(a.ID()) {
				panic(fmt.Sprintf("alloc: arena %d of %s found twice (%s)", a.ID(), c, where))
			}
			return true
		}
	}

	for i := range r.classes {
		c := sizeclass.Class(i)
		cl := &r.classes[i]
		cl.chain.Check()
		cl.chain.Walk(visit(c, "chain"))
		cl.toSweep.Walk(visit(c, "sweep queue"))
		cl.swept.Walk(visit(c, "swept queue"))

		if cur := cl.free.Arena; cur != arena.Placeholder() {
			if !cur.Claimed() || !seen.Contains(cur.ID()) {
				panic(fmt.Sprintf("alloc: free list of %s holds unowned %v", c, cur))
			}
		}
	}
}

// Close returns every arena to the source. No sweep may be in flight.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.classes {
		cl := &r.classes[i]
		r.purgeLocked(cl)
		all := cl.chain.TakeAll()
		all.Concat(&cl.toSweep)
		all.Concat(&cl.swept)
		r.releaseLocked(&all)
		cl.state.Store(uint32(SweepDone))
	}
	r.sweepDone.Broadcast()
}

func (r *Registry) installLocked(cl *classState, a *arena.Arena) Thing {
	if old := cl.free.Arena; old != arena.Placeholder() {
		old.Unclaim()
	}
	cl.free = FreeList{Arena: a}
	slot, ok := a.Allocate(0)
	if !ok {
		panic(fmt.Sprintf("alloc: claimed %v has no free things", a))
	}
	cl.free.Next = slot + 1
	return Thing{Arena: a, Slot: slot}
}

func (r *Registry) purgeLocked(cl *classState) {
	if cur := cl.free.Arena; cur != arena.Placeholder() {
		cur.Unclaim()
	}
	cl.free = FreeList{Arena: arena.Placeholder()}
}

func (r *Registry) newArenaLocked(c sizeclass.Class) (*arena.Arena, error) {
	id, data, err := r.source.Allocate()
	if err != nil {
		r.logger.Warn("Arena request failed", "class", c.String(), "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrOutOfMemory, c, err)
	}
	r.stats.ArenasCreated.Add(1)
	return arena.New(id, c.ThingSize(), data), nil
}

// sweepList sweeps every arena of work into out.
func (r *Registry) sweepList(work, out *arena.List, cancelled func() bool) SweepResult {
	var res SweepResult
	stopped := false
	for a := work.PopFront(); a != nil; a = work.PopFront() {
		if !stopped && cancelled != nil && cancelled() {
			stopped = true
		}
		if stopped {
			a.Retain()
			res.Retained++
		} else {
			res.Freed += a.Sweep()
			res.Arenas++
		}
		out.PushBack(a)
	}
	r.stats.ArenasSwept.Add(uint64(res.Arenas))
	r.stats.ThingsFreed.Add(uint64(res.Freed))
	return res
}

func (r *Registry) mergeLocked(c sizeclass.Class, cl *classState) {
	table := arena.NewBucketTable(c.ThingsPerArena())
	for a := cl.swept.PopFront(); a != nil; a = cl.swept.PopFront() {
		table.InsertAt(a, a.FreeCount())
	}
	empty := table.ExtractEmpty()
	released := empty.Len()

	fresh := table.ToArenaChain()
	cl.chain.MoveCursorToEnd()
	fresh.InsertListWithCursorAtEnd(&cl.chain)
	cl.chain = fresh
	r.releaseLocked(&empty)

	cl.state.Store(uint32(SweepDone))
	r.sweepDone.Broadcast()

	r.logger.Debug("Swept arenas merged", "class", c.String(), "arenas", cl.chain.Len(), "released", released)
}

func (r *Registry) releaseLocked(l *arena.List) {
	for a := l.PopFront(); a != nil; a = l.PopFront() {
		r.source.Release(a.ID())
		r.stats.ArenasDestroyed.Add(1)
	}
}
