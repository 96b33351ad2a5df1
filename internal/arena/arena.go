package arena

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/gcarena/internal/sizeclass"
)

// HeaderSize is the number of bytes reserved at the start of an arena's memory.
const HeaderSize = sizeclass.HeaderSize

// Arena is a block of memory split into equally sized things.
//
// Arena is not safe for concurrent use. Whoever owns the container holding the
// arena is the only one allowed to touch it.
type Arena struct {
	next *Arena

	id        uint32
	thingSize int
	capacity  int
	free      int
	claimed   bool
	sealed    bool

	data      []byte
	allocated *bitset.BitSet
	marked    *bitset.BitSet
}

// placeholder has no things, so every allocation attempt against it reports
// exhaustion. Free lists point at it instead of nil.
var placeholder = &Arena{
	allocated: bitset.New(0),
	marked:    bitset.New(0),
}

// Placeholder returns the shared zero-capacity arena used as the empty
// free-list sentinel.
func Placeholder() *Arena {
	return placeholder
}

// New wraps data as an arena of things of thingSize bytes.
func New(id uint32, thingSize int, data []byte) *Arena {
	if thingSize <= 0 || len(data) < HeaderSize+thingSize {
		panic(fmt.Sprintf("arena: %d bytes cannot hold things of %d bytes", len(data), thingSize))
	}
	capacity := (len(data) - HeaderSize) / thingSize
	return &Arena{
		id:        id,
		thingSize: thingSize,
		capacity:  capacity,
		free:      capacity,
		data:      data,
		allocated: bitset.New(uint(capacity)),
		marked:    bitset.New(uint(capacity)),
	}
}

// ID returns the identifier assigned by the chunk allocator.
func (a *Arena) ID() uint32 { return a.id }

// Next returns the arena linked after a in its current container.
func (a *Arena) Next() *Arena { return a.next }

// Capacity returns the number of things the arena can hold.
func (a *Arena) Capacity() int { return a.capacity }

// ThingSize returns the size of one thing in bytes.
func (a *Arena) ThingSize() int { return a.thingSize }

// FreeCount returns the number of unallocated things.
func (a *Arena) FreeCount() int { return a.free }

// IsEmpty reports whether the arena holds no allocated things.
func (a *Arena) IsEmpty() bool { return a.free == a.capacity }

// HasFreeThings reports whether a chain may hand this arena to an allocator.
// Claimed and sealed arenas never have free things from the chain's point of view.
func (a *Arena) HasFreeThings() bool {
	return !a.claimed && !a.sealed && a.free > 0
}

// Claim marks the arena as owned by an allocator free list.
func (a *Arena) Claim() { a.claimed = true }

// Unclaim returns the arena's remaining free things to the chain's view.
func (a *Arena) Unclaim() { a.claimed = false }

// Claimed reports whether an allocator free list owns the arena's free things.
func (a *Arena) Claimed() bool { return a.claimed }

// Seal withholds the arena's free things until it is swept or retained again.
func (a *Arena) Seal() { a.sealed = true }

// Sealed reports whether the arena's free things are withheld.
func (a *Arena) Sealed() bool { return a.sealed }

// Allocate reserves the first free thing at or after hint.
// The returned memory is zeroed.
func (a *Arena) Allocate(hint uint) (uint, bool) {
	slot, ok := a.allocated.NextClear(hint)
	if !ok || slot >= uint(a.capacity) {
		return 0, false
	}
	a.allocated.Set(slot)
	a.free--
	clear(a.Thing(slot))
	return slot, true
}

// Thing returns the memory of the thing at slot.
func (a *Arena) Thing(slot uint) []byte {
	if slot >= uint(a.capacity) {
		panic(fmt.Sprintf("arena %d: slot %d out of range [0,%d)", a.id, slot, a.capacity))
	}
	off := HeaderSize + int(slot)*a.thingSize
	return a.data[off : off+a.thingSize : off+a.thingSize]
}

// IsAllocated reports whether the thing at slot is in use.
func (a *Arena) IsAllocated(slot uint) bool {
	return slot < uint(a.capacity) && a.allocated.Test(slot)
}

// Mark records the thing at slot as live for the next sweep.
func (a *Arena) Mark(slot uint) {
	if slot >= uint(a.capacity) {
		panic(fmt.Sprintf("arena %d: mark of slot %d out of range [0,%d)", a.id, slot, a.capacity))
	}
	a.marked.Set(slot)
}

// IsMarked reports whether the thing at slot was marked since the last sweep.
func (a *Arena) IsMarked(slot uint) bool {
	return slot < uint(a.capacity) && a.marked.Test(slot)
}

// Sweep frees every allocated thing that was not marked and clears all marks.
// It returns the number of things freed.
func (a *Arena) Sweep() int {
	a.allocated.InPlaceIntersection(a.marked)
	a.marked.ClearAll()
	free := a.capacity - int(a.allocated.Count())
	freed := free - a.free
	a.free = free
	a.sealed = false
	return freed
}

// Retain clears all marks without freeing anything.
func (a *Arena) Retain() {
	a.marked.ClearAll()
	a.sealed = false
}

// Bytes returns the whole memory block backing the arena.
func (a *Arena) Bytes() []byte { return a.data }

func (a *Arena) String() string {
	return fmt.Sprintf("Arena{id: %d, things: %d, free: %d, claimed: %t, sealed: %t}", a.id, a.capacity, a.free, a.claimed, a.sealed)
}
