package gcarena

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with gcarena-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewConsoleLogger creates a Logger with colorized output for terminals.
func NewConsoleLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithClass adds a size class field to the logger.
func (l *Logger) WithClass(c SizeClass) *Logger {
	return &Logger{
		Logger: l.Logger.With("class", c.String()),
	}
}

// LogSweep logs the end of a sweep.
func (l *Logger) LogSweep(ctx context.Context, mode SweepMode, res SweepResult) {
	if res.Cancelled {
		l.WarnContext(ctx, "sweep cancelled",
			"mode", mode.String(),
			"arenas", res.Arenas,
			"retained", res.Retained,
			"freed", res.Freed,
		)
		return
	}
	l.DebugContext(ctx, "sweep completed",
		"mode", mode.String(),
		"arenas", res.Arenas,
		"freed", res.Freed,
		"duration", res.Duration,
	)
}

// LogAllocationFailure logs a failed allocation.
func (l *Logger) LogAllocationFailure(ctx context.Context, c SizeClass, err error) {
	l.WithClass(c).ErrorContext(ctx, "allocation failed", "error", err)
}

// LogDecommit logs chunks handed back to the OS.
func (l *Logger) LogDecommit(ctx context.Context, chunks int, bytes int) {
	if chunks == 0 {
		return
	}
	l.InfoContext(ctx, "chunks decommitted",
		"chunks", chunks,
		"bytes", bytes,
	)
}
