package gcarena

import (
	"errors"
	"fmt"

	"github.com/hupe1980/gcarena/internal/alloc"
	"github.com/hupe1980/gcarena/internal/chunk"
	"github.com/hupe1980/gcarena/internal/resource"
)

var (
	// ErrOutOfMemory is returned when no arena could be obtained for an allocation.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrClosed is returned when the heap has been closed.
	ErrClosed = errors.New("heap closed")

	// ErrCorrupted is returned by Verify when a heap structure is inconsistent.
	ErrCorrupted = errors.New("heap corrupted")
)

// ErrInvalidSizeClass indicates a size class outside the supported set.
type ErrInvalidSizeClass struct {
	Class int
}

func (e *ErrInvalidSizeClass) Error() string {
	return fmt.Sprintf("invalid size class: %d", e.Class)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Every way of running out of arenas is reported as ErrOutOfMemory.
	if errors.Is(err, alloc.ErrOutOfMemory) ||
		errors.Is(err, chunk.ErrChunkLimit) ||
		errors.Is(err, resource.ErrMemoryLimitExceeded) {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	return err
}
