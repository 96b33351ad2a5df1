// Package task runs units of background work that fall back to synchronous
// execution when no worker is available.
//
// A Task moves strictly forward through NotStarted, Dispatched and Finished.
// Cancellation is cooperative: the work polls Cancelled at safe points and may
// ignore the request altogether.
//
// Join must be called before anything the work closes over is torn down.
package task

import (
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of a Task.
type State uint32

const (
	NotStarted State = iota
	Dispatched
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Dispatched:
		return "Dispatched"
	case Finished:
		return "Finished"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Pool starts work on a worker. TryGo returns false when it has no capacity,
// in which case fn has not been run.
type Pool interface {
	TryGo(fn func()) bool
}

// CancelMode selects whether Cancel waits for the work to finish.
type CancelMode uint8

const (
	NoWait CancelMode = iota
	Wait
)

// Func is the work performed by a Task.
type Func func(t *Task)

// Task is a single unit of background work.
type Task struct {
	name string
	pool Pool
	fn   Func

	mu        sync.Mutex
	done      *sync.Cond
	state     State
	cancelled bool
	duration  time.Duration
}

// New creates a task that runs fn on pool. A nil pool always runs fn synchronously.
func New(name string, pool Pool, fn Func) *Task {
	t := &Task{name: name, pool: pool, fn: fn}
	t.done = sync.NewCond(&t.mu)
	return t
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Duration returns how long the work ran. It is zero until the task finishes.
func (t *Task) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Start dispatches the work onto the pool. When the pool has no capacity the
// work runs on the calling goroutine and the task is Finished on return.
// Start only has an effect on a NotStarted task; it reports whether it did.
func (t *Task) Start() bool {
	t.mu.Lock()
	if t.state != NotStarted {
		t.mu.Unlock()
		return false
	}
	t.state = Dispatched
	t.mu.Unlock()

	if t.pool == nil || !t.pool.TryGo(t.run) {
		t.run()
	}
	return true
}

func (t *Task) run() {
	start := time.Now()
	t.fn(t)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.duration = elapsed
	t.state = Finished
	t.done.Broadcast()
	t.mu.Unlock()
}

// Join blocks until the task is Finished. It returns immediately if the task
// was never started or has already finished.
func (t *Task) Join() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state == Dispatched {
		t.done.Wait()
	}
}

// Cancel asks the work to stop at its next safe point. With Wait it also joins.
func (t *Task) Cancel(mode CancelMode) {
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()

	if mode == Wait {
		t.Join()
	}
}

// Cancelled reports whether cancellation was requested.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reset returns a finished or never-started task to NotStarted so it can run again.
// Resetting a dispatched task panics.
func (t *Task) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Dispatched {
		panic(fmt.Sprintf("task %s: reset while dispatched", t.name))
	}
	t.state = NotStarted
	t.cancelled = false
	t.duration = 0
}
