package resource

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for chunk memory.
	// If 0, no hard limit is enforced (only tracking).
	MemoryLimitBytes int64

	// MaxBackgroundWorkers is the maximum number of concurrent background tasks.
	// If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// DecommitBytesPerSec limits how fast empty chunks are handed back to the OS.
	// If 0, unlimited.
	DecommitBytesPerSec int64

	// DecommitBurstBytes is the largest single decommit the limiter admits.
	// It is raised to DecommitBytesPerSec if smaller. Set it to at least the
	// chunk size, or chunks can never be decommitted.
	DecommitBurstBytes int64
}

// Controller manages the limits shared by one heap.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	workers *semaphore.Weighted
	busy    atomic.Int64
	wg      sync.WaitGroup

	decommit *rate.Limiter // nil if unlimited
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:     cfg,
		workers: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.DecommitBytesPerSec > 0 {
		burst := max(cfg.DecommitBurstBytes, cfg.DecommitBytesPerSec)
		c.decommit = rate.NewLimiter(rate.Limit(cfg.DecommitBytesPerSec), int(burst))
	}
	return c
}

// AcquireMemory reserves bytes of chunk memory without blocking.
// Returns ErrMemoryLimitExceeded if limit would be exceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory returns bytes reserved by AcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// TryGo runs fn on a new goroutine if a worker slot is free.
// It returns false without running fn when no slot is available; the caller
// is expected to run the work itself. A nil Controller has no slots.
func (c *Controller) TryGo(fn func()) bool {
	if c == nil || !c.workers.TryAcquire(1) {
		return false
	}
	c.busy.Add(1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.workers.Release(1)
		defer c.busy.Add(-1)
		fn()
	}()
	return true
}

// BusyWorkers returns the number of goroutines started by TryGo that are still running.
func (c *Controller) BusyWorkers() int {
	if c == nil {
		return 0
	}
	return int(c.busy.Load())
}

// Wait blocks until every goroutine started by TryGo has returned.
func (c *Controller) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

// AllowDecommit reports whether bytes may be returned to the OS now.
// Tokens are consumed only when the answer is true. Requests larger than the
// burst are never allowed.
func (c *Controller) AllowDecommit(bytes int) bool {
	if c == nil || c.decommit == nil {
		return true
	}
	return c.decommit.AllowN(time.Now(), bytes)
}
