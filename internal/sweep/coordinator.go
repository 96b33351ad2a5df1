// Package sweep coordinates background sweeping.
//
// A Coordinator runs at most one background sweep at a time. Asking for a
// sweep while one is in flight is a no-op: nothing has become garbage since
// the running sweep started, so it already covers the request.
//
// WaitBackgroundSweepEnd must not be called while holding the registry lock;
// the sweep needs that lock to finish.
package sweep

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/gcarena/internal/alloc"
	"github.com/hupe1980/gcarena/internal/sizeclass"
	"github.com/hupe1980/gcarena/internal/task"
)

// State is the coordinator state.
type State uint8

const (
	Idle State = iota
	Sweeping
)

func (s State) String() string {
	if s == Sweeping {
		return "Sweeping"
	}
	return "Idle"
}

// Sweeper is the registry side of a sweep.
type Sweeper interface {
	QueueForBackgroundSweep(c sizeclass.Class) bool
	SweepQueued(c sizeclass.Class, cancelled func() bool) alloc.SweepResult
	MergeSweptArenas(c sizeclass.Class)
}

// Result summarizes one background sweep.
type Result struct {
	Classes   int
	Arenas    int
	Retained  int
	Freed     int
	Duration  time.Duration
	Cancelled bool
}

// Coordinator serializes background sweeps for one heap.
type Coordinator struct {
	mu      sync.Mutex
	idle    *sync.Cond
	state   State
	current *task.Task

	sweeper    Sweeper
	pool       task.Pool
	logger     *slog.Logger
	onEnd      func(Result)
	dispatched atomic.Uint64
}

// Option is a configuration option for Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger for the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithSweepEndHook registers fn to receive the result of every sweep.
// fn runs on the sweeping goroutine before waiters are released.
func WithSweepEndHook(fn func(Result)) Option {
	return func(c *Coordinator) {
		c.onEnd = fn
	}
}

// New creates a coordinator that sweeps through sweeper on pool.
func New(sweeper Sweeper, pool task.Pool, opts ...Option) *Coordinator {
	c := &Coordinator{sweeper: sweeper, pool: pool}
	c.idle = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// MaybeStartBackgroundSweep queues every size class with arenas for sweeping
// and dispatches a task that sweeps and merges them. Queueing happens on the
// calling goroutine, which must be the mutator. It returns false if a sweep
// was already running or there was nothing to sweep.
func (c *Coordinator) MaybeStartBackgroundSweep() bool {
	var classes []sizeclass.Class

	// The task is published with the state so Cancel reaches it even while
	// classes are still being queued.
	c.mu.Lock()
	if c.state == Sweeping {
		c.mu.Unlock()
		return false
	}
	t := task.New("background-sweep", c.pool, func(t *task.Task) {
		c.sweep(t, classes)
	})
	c.state = Sweeping
	c.current = t
	c.mu.Unlock()

	for _, sc := range sizeclass.All() {
		if c.sweeper.QueueForBackgroundSweep(sc) {
			classes = append(classes, sc)
		}
	}
	if len(classes) == 0 {
		c.finish(Result{})
		return false
	}

	c.dispatched.Add(1)
	c.logger.Debug("Background sweep started", "classes", len(classes))
	t.Start()
	return true
}

// WaitBackgroundSweepEnd blocks until no sweep is running.
func (c *Coordinator) WaitBackgroundSweepEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.state == Sweeping {
		c.idle.Wait()
	}
}

// Cancel asks the running sweep to stop early. Arenas it has not reached are
// kept as they are. With task.Wait it also waits for the sweep to end.
func (c *Coordinator) Cancel(mode task.CancelMode) {
	c.mu.Lock()
	t := c.current
	c.mu.Unlock()

	if t != nil {
		t.Cancel(mode)
	}
	if mode == task.Wait {
		c.WaitBackgroundSweepEnd()
	}
}

// IsSweeping reports whether a background sweep is in flight.
func (c *Coordinator) IsSweeping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Sweeping
}

// Dispatched returns the number of sweep tasks started so far.
func (c *Coordinator) Dispatched() uint64 {
	return c.dispatched.Load()
}

func (c *Coordinator) sweep(t *task.Task, classes []sizeclass.Class) {
	start := time.Now()
	res := Result{Classes: len(classes)}

	// Every queued class must be merged, even after cancellation, or
	// allocations waiting on it would never resume.
	for _, sc := range classes {
		r := c.sweeper.SweepQueued(sc, t.Cancelled)
		c.sweeper.MergeSweptArenas(sc)
		res.Arenas += r.Arenas
		res.Retained += r.Retained
		res.Freed += r.Freed
	}

	res.Duration = time.Since(start)
	res.Cancelled = t.Cancelled()
	c.logger.Debug("Background sweep completed",
		"classes", res.Classes,
		"arenas", res.Arenas,
		"freed", res.Freed,
		"retained", res.Retained,
		"duration", res.Duration,
	)
	c.finish(res)
}

func (c *Coordinator) finish(res Result) {
	if c.onEnd != nil && res.Classes > 0 {
		c.onEnd(res)
	}
	c.mu.Lock()
	c.state = Idle
	c.current = nil
	c.idle.Broadcast()
	c.mu.Unlock()
}
