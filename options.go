package gcarena

import (
	"log/slog"
)

type options struct {
	metricsCollector     MetricsCollector
	logger               *Logger
	memoryLimit          int64
	maxBackgroundWorkers int64
	arenasPerChunk       int
	maxChunks            int
	decommitBytesPerSec  int64
	keepEmptyChunks      int
	prefetch             bool
}

// Option configures Heap constructor behavior.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &gcarena.BasicMetricsCollector{}
//	h, _ := gcarena.New(gcarena.WithMetricsCollector(metrics))
//	// ... use h ...
//	stats := metrics.GetStats()
//	fmt.Printf("Sweeps: %d, Avg: %s\n", stats.SweepCount, stats.SweepAvg)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := gcarena.NewJSONLogger(slog.LevelInfo)
//	h, _ := gcarena.New(gcarena.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMemoryLimit caps the memory mapped for arenas, in bytes.
// Allocations that would exceed it fail with ErrOutOfMemory. 0 means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithMaxBackgroundWorkers sets how many background tasks (sweeps and chunk
// prefetches) may run at once. When all slots are busy, work runs on the
// calling goroutine instead.
func WithMaxBackgroundWorkers(n int) Option {
	return func(o *options) {
		o.maxBackgroundWorkers = int64(n)
	}
}

// WithArenasPerChunk sets how many arenas are mapped from the OS at a time.
func WithArenasPerChunk(n int) Option {
	return func(o *options) {
		o.arenasPerChunk = n
	}
}

// WithMaxChunks caps the number of mapped chunks. 0 means unlimited.
func WithMaxChunks(n int) Option {
	return func(o *options) {
		o.maxChunks = n
	}
}

// WithDecommitRate limits how many bytes of empty chunks are returned to the
// OS per second after a sweep. 0 means unlimited.
func WithDecommitRate(bytesPerSec int64) Option {
	return func(o *options) {
		o.decommitBytesPerSec = bytesPerSec
	}
}

// WithKeepEmptyChunks sets how many fully empty chunks stay mapped after a
// sweep so that the next allocations do not have to map memory again.
func WithKeepEmptyChunks(n int) Option {
	return func(o *options) {
		o.keepEmptyChunks = n
	}
}

// WithChunkPrefetch maps the next chunk in the background as soon as the
// last free arena has been handed out.
func WithChunkPrefetch(enabled bool) Option {
	return func(o *options) {
		o.prefetch = enabled
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector:     NoopMetricsCollector{},
		logger:               NoopLogger(),
		maxBackgroundWorkers: 1,
		keepEmptyChunks:      1,
		prefetch:             true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
