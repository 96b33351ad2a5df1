package gcarena

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/gcarena/internal/alloc"
	"github.com/hupe1980/gcarena/internal/chunk"
	"github.com/hupe1980/gcarena/internal/resource"
	"github.com/hupe1980/gcarena/internal/sizeclass"
	"github.com/hupe1980/gcarena/internal/sweep"
	"github.com/hupe1980/gcarena/internal/task"
)

// SizeClass selects the thing size of an allocation.
type SizeClass = sizeclass.Class

// Supported size classes.
const (
	Size16  = sizeclass.Class16
	Size24  = sizeclass.Class24
	Size32  = sizeclass.Class32
	Size48  = sizeclass.Class48
	Size64  = sizeclass.Class64
	Size96  = sizeclass.Class96
	Size128 = sizeclass.Class128
	Size256 = sizeclass.Class256
)

// SizeClassFor returns the smallest size class holding size bytes.
func SizeClassFor(size int) (SizeClass, bool) {
	return sizeclass.ForSize(size)
}

// SizeClasses returns every size class in ascending order.
func SizeClasses() []SizeClass {
	return sizeclass.All()
}

// ClassStats describes the current state of one size class.
type ClassStats = alloc.ClassStats

// SweepMode selects where Collect sweeps.
type SweepMode uint8

const (
	// SweepForeground sweeps on the calling goroutine before Collect returns.
	SweepForeground SweepMode = iota
	// SweepBackground queues every size class and sweeps on a background worker.
	SweepBackground
)

func (m SweepMode) String() string {
	switch m {
	case SweepForeground:
		return "foreground"
	case SweepBackground:
		return "background"
	default:
		return fmt.Sprintf("SweepMode(%d)", m)
	}
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Arenas    int // arenas swept
	Retained  int // arenas kept unswept after cancellation
	Freed     int // things freed
	Duration  time.Duration
	Cancelled bool
}

// Thing is a handle to one allocated object.
type Thing struct {
	t     alloc.Thing
	class SizeClass
}

// Bytes returns the thing's memory. It is only valid until the thing is
// swept or the heap is closed.
func (t Thing) Bytes() []byte { return t.t.Bytes() }

// Class returns the size class the thing was allocated from.
func (t Thing) Class() SizeClass { return t.class }

// IsZero reports whether t is the zero Thing.
func (t Thing) IsZero() bool { return t.t.Arena == nil }

// Stats is a snapshot of heap state.
type Stats struct {
	ArenasCreated   uint64
	ArenasDestroyed uint64
	ArenasSwept     uint64
	ThingsFreed     uint64

	ActiveChunks    int
	AvailableArenas int
	MappedBytes     int64
	MemoryLimit     int64 // 0 if unlimited
	BusyWorkers     int
	Sweeping        bool

	Classes [sizeclass.Count]ClassStats
}

// Heap is an arena-based, size-segregated allocator with mark/sweep
// reclamation.
//
// A Heap has one mutator: Allocate, Mark and Collect must not be called
// concurrently with each other. Marks must be applied while no background
// sweep is running; call WaitSweep first. Stats, Verify and WaitSweep may be
// called from any goroutine.
type Heap struct {
	opts options

	controller *resource.Controller
	chunks     *chunk.Pool
	registry   *alloc.Registry
	sweeper    *sweep.Coordinator

	prefetchMu sync.Mutex
	prefetch   *task.Task

	closed atomic.Bool
}

// New creates an empty heap. No memory is mapped until the first allocation.
func New(optFns ...Option) (*Heap, error) {
	o := applyOptions(optFns)
	if o.arenasPerChunk < 0 {
		return nil, fmt.Errorf("invalid arenas per chunk: %d", o.arenasPerChunk)
	}
	if o.memoryLimit < 0 {
		return nil, fmt.Errorf("invalid memory limit: %d", o.memoryLimit)
	}

	arenasPerChunk := o.arenasPerChunk
	if arenasPerChunk == 0 {
		arenasPerChunk = chunk.DefaultArenasPerChunk
	}

	h := &Heap{opts: o}
	h.controller = resource.NewController(resource.Config{
		MemoryLimitBytes:     o.memoryLimit,
		MaxBackgroundWorkers: o.maxBackgroundWorkers,
		DecommitBytesPerSec:  o.decommitBytesPerSec,
		// Chunks are decommitted whole, so the bucket must hold at least one.
		DecommitBurstBytes: int64(arenasPerChunk) * sizeclass.ArenaSize,
	})
	h.chunks = chunk.New(chunk.Config{
		ArenasPerChunk: arenasPerChunk,
		MaxChunks:      o.maxChunks,
	}, chunk.WithController(h.controller), chunk.WithLogger(o.logger.Logger))
	h.registry = alloc.New(heapSource{h}, alloc.WithLogger(o.logger.Logger))
	h.sweeper = sweep.New(h.registry, h.controller,
		sweep.WithLogger(o.logger.Logger),
		sweep.WithSweepEndHook(h.backgroundSweepEnded),
	)
	h.prefetch = task.New("chunk-prefetch", h.controller, h.prefetchChunk)

	return h, nil
}

// Allocate returns a zeroed thing of class c.
func (h *Heap) Allocate(c SizeClass) (Thing, error) {
	if h.closed.Load() {
		return Thing{}, ErrClosed
	}
	if !c.Valid() {
		return Thing{}, &ErrInvalidSizeClass{Class: int(c)}
	}

	if t, ok := h.registry.AllocateFast(c); ok {
		h.opts.metricsCollector.RecordAllocation(c, false)
		return Thing{t: t, class: c}, nil
	}

	t, err := h.registry.AllocateSlow(c)
	if err != nil {
		err = translateError(err)
		h.opts.metricsCollector.RecordAllocationFailure(c, err)
		h.opts.logger.LogAllocationFailure(context.Background(), c, err)
		return Thing{}, err
	}
	h.opts.metricsCollector.RecordAllocation(c, true)
	return Thing{t: t, class: c}, nil
}

// Mark records t as live for the next sweep. Marks are consumed by the sweep.
func (h *Heap) Mark(t Thing) {
	if t.IsZero() {
		return
	}
	t.t.Arena.Mark(t.t.Slot)
}

// IsMarked reports whether t is marked for the next sweep.
func (h *Heap) IsMarked(t Thing) bool {
	if t.IsZero() {
		return false
	}
	return t.t.Arena.IsMarked(t.t.Slot)
}

// Collect frees every allocated thing that is not marked. With
// SweepBackground it returns as soon as the sweep is queued; allocations of a
// class being swept wait for that class to finish.
func (h *Heap) Collect(ctx context.Context, mode SweepMode) error {
	if h.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch mode {
	case SweepForeground:
		return h.sweepForeground(ctx)
	case SweepBackground:
		if !h.sweeper.MaybeStartBackgroundSweep() {
			h.opts.logger.DebugContext(ctx, "background sweep not started")
		}
		return nil
	default:
		return fmt.Errorf("invalid sweep mode: %d", mode)
	}
}

// WaitSweep blocks until no background sweep is running. If ctx ends first the
// sweep is cancelled and the context error returned; arenas it has not reached
// yet keep all their things.
func (h *Heap) WaitSweep(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sweeper.WaitBackgroundSweepEnd()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.sweeper.Cancel(task.NoWait)
		return ctx.Err()
	}
}

// Stats returns a snapshot of heap state.
func (h *Heap) Stats() Stats {
	rs := h.registry.Stats()
	cs := h.chunks.Stats()

	s := Stats{
		ArenasCreated:   rs.ArenasCreated,
		ArenasDestroyed: rs.ArenasDestroyed,
		ArenasSwept:     rs.ArenasSwept,
		ThingsFreed:     rs.ThingsFreed,
		ActiveChunks:    cs.ActiveChunks,
		AvailableArenas: cs.AvailableArenas,
		MappedBytes:     h.controller.MemoryUsage(),
		MemoryLimit:     h.controller.MemoryLimit(),
		BusyWorkers:     h.controller.BusyWorkers(),
		Sweeping:        h.sweeper.IsSweeping(),
	}
	for _, c := range sizeclass.All() {
		s.Classes[c] = h.registry.ClassStats(c)
	}
	return s
}

// Verify checks the heap's internal structures and returns ErrCorrupted if
// any of them is inconsistent.
func (h *Heap) Verify() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrCorrupted, r)
		}
	}()
	h.registry.Check()
	return nil
}

// Close cancels any running sweep, returns every arena and unmaps all memory.
// Things allocated from the heap must not be used afterwards.
func (h *Heap) Close() error {
	if h.closed.Swap(true) {
		return nil
	}

	h.sweeper.Cancel(task.Wait)
	h.prefetchMu.Lock()
	h.prefetch.Join()
	h.prefetchMu.Unlock()

	h.registry.Close()
	h.controller.Wait()
	return h.chunks.Close()
}

func (h *Heap) sweepForeground(ctx context.Context) error {
	// A background sweep owns the queued arenas until it has merged them.
	h.sweeper.WaitBackgroundSweepEnd()

	start := time.Now()
	var res SweepResult
	for _, c := range sizeclass.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := h.registry.QueueForForegroundSweep(c)
		res.Arenas += r.Arenas
		res.Freed += r.Freed
	}
	res.Duration = time.Since(start)
	h.sweepEnded(ctx, SweepForeground, res)
	return nil
}

func (h *Heap) backgroundSweepEnded(r sweep.Result) {
	h.sweepEnded(context.Background(), SweepBackground, SweepResult{
		Arenas:    r.Arenas,
		Retained:  r.Retained,
		Freed:     r.Freed,
		Duration:  r.Duration,
		Cancelled: r.Cancelled,
	})
}

func (h *Heap) sweepEnded(ctx context.Context, mode SweepMode, res SweepResult) {
	h.opts.metricsCollector.RecordSweep(mode, res)
	h.opts.logger.LogSweep(ctx, mode, res)

	n := h.chunks.Decommit(h.opts.keepEmptyChunks)
	h.opts.logger.LogDecommit(ctx, n, n*h.chunks.ChunkBytes())
}

// maybePrefetch maps the next chunk ahead of demand once the pool is dry.
func (h *Heap) maybePrefetch() {
	if !h.opts.prefetch || h.closed.Load() || h.chunks.Available() > 0 {
		return
	}

	h.prefetchMu.Lock()
	defer h.prefetchMu.Unlock()
	switch h.prefetch.State() {
	case task.Dispatched:
		return
	case task.Finished:
		h.prefetch.Reset()
	}
	h.prefetch.Start()
}

func (h *Heap) prefetchChunk(t *task.Task) {
	if t.Cancelled() || h.chunks.Available() > 0 {
		return
	}
	if err := h.chunks.Grow(); err != nil {
		h.opts.logger.Debug("chunk prefetch skipped", "error", err)
	}
}

// heapSource feeds the registry from the chunk pool.
type heapSource struct {
	h *Heap
}

func (s heapSource) Allocate() (uint32, []byte, error) {
	id, data, err := s.h.chunks.Allocate()
	if err != nil {
		return 0, nil, translateError(err)
	}
	s.h.opts.metricsCollector.RecordArenaCreated()
	s.h.maybePrefetch()
	return id, data, nil
}

func (s heapSource) Release(id uint32) {
	s.h.chunks.Release(id)
	s.h.opts.metricsCollector.RecordArenasDestroyed(1)
}
