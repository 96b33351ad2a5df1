package mmap

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrClosed is returned when a mapping is used after Close.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the requested size is not positive.
	ErrInvalidSize = errors.New("mmap: invalid size")
	// ErrOutOfBounds is returned when a range lies outside the mapping.
	ErrOutOfBounds = errors.New("mmap: out of bounds")
)

// Advice tells the kernel what will happen to a range of pages.
type Advice int

const (
	// AdviseNormal resets any earlier advice.
	AdviseNormal Advice = iota
	// AdviseWillNeed asks the kernel to fault the pages in ahead of use.
	AdviseWillNeed
	// AdviseFree lets the kernel reclaim the pages. They read back as zero.
	AdviseFree
)

func (a Advice) String() string {
	switch a {
	case AdviseWillNeed:
		return "willneed"
	case AdviseFree:
		return "free"
	default:
		return "normal"
	}
}

// Mapping is a private, zero-filled, read-write region outside the Go heap.
type Mapping struct {
	data    []byte
	closed  atomic.Bool
	release func([]byte) error
}

// MapAnon maps size bytes of anonymous memory.
func MapAnon(size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	data, release, err := osMapAnon(size)
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, release: release}, nil
}

// Bytes returns the mapped memory, or nil once the mapping is closed.
// Slices taken before Close must not be used afterwards.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the mapped length in bytes.
func (m *Mapping) Size() int { return len(m.data) }

// Advise applies advice to length bytes starting at offset.
func (m *Mapping) Advise(offset, length int, advice Advice) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return ErrOutOfBounds
	}
	if length == 0 {
		return nil
	}
	return osAdvise(m.data[offset:offset+length], advice)
}

// Close returns the memory to the OS. Calling it again is a no-op.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	return m.release(m.data)
}
