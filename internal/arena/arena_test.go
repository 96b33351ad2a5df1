package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArena_New(t *testing.T) {
	t.Run("capacity from memory size", func(t *testing.T) {
		a := New(7, 16, make([]byte, 4096))
		assert.Equal(t, uint32(7), a.ID())
		assert.Equal(t, (4096-HeaderSize)/16, a.Capacity())
		assert.Equal(t, a.Capacity(), a.FreeCount())
		assert.True(t, a.IsEmpty())
		assert.True(t, a.HasFreeThings())
	})

	t.Run("too small", func(t *testing.T) {
		assert.Panics(t, func() { New(1, 16, make([]byte, HeaderSize)) })
		assert.Panics(t, func() { New(1, 0, make([]byte, 4096)) })
	})
}

func TestArena_Allocate(t *testing.T) {
	a := newTestArena(t, 4, 4)

	copy(a.Thing(0), []byte("dirty"))

	slot, ok := a.Allocate(0)
	require.True(t, ok)
	assert.Equal(t, uint(0), slot)
	assert.Equal(t, make([]byte, testThingSize), a.Thing(slot), "allocated memory must be zeroed")
	assert.True(t, a.IsAllocated(slot))
	assert.Equal(t, 3, a.FreeCount())

	for i := 1; i < 4; i++ {
		slot, ok = a.Allocate(slot + 1)
		require.True(t, ok)
		assert.Equal(t, uint(i), slot)
	}

	_, ok = a.Allocate(0)
	assert.False(t, ok)
	assert.Equal(t, 0, a.FreeCount())
	assert.False(t, a.HasFreeThings())
}

func TestArena_Placeholder(t *testing.T) {
	p := Placeholder()
	assert.Same(t, p, Placeholder())
	assert.Equal(t, 0, p.Capacity())

	for _, hint := range []uint{0, 1, 1000} {
		_, ok := p.Allocate(hint)
		assert.False(t, ok)
	}
	assert.False(t, p.HasFreeThings())
}

func TestArena_Sweep(t *testing.T) {
	a := newTestArena(t, 8, 0)

	a.Mark(1)
	a.Mark(5)
	assert.True(t, a.IsMarked(1))

	freed := a.Sweep()
	assert.Equal(t, 6, freed)
	assert.Equal(t, 6, a.FreeCount())
	assert.True(t, a.IsAllocated(1))
	assert.True(t, a.IsAllocated(5))
	assert.False(t, a.IsAllocated(0))
	assert.False(t, a.IsMarked(1), "marks are cleared by sweeping")

	// Nothing marked: everything goes.
	freed = a.Sweep()
	assert.Equal(t, 2, freed)
	assert.True(t, a.IsEmpty())
}

func TestArena_Retain(t *testing.T) {
	a := newTestArena(t, 8, 2)
	a.Mark(0)
	a.Retain()

	assert.Equal(t, 2, a.FreeCount())
	assert.False(t, a.IsMarked(0))
}

func TestArena_Seal(t *testing.T) {
	a := newTestArena(t, 8, 3)
	a.Seal()
	assert.True(t, a.Sealed())
	assert.False(t, a.HasFreeThings())
	assert.Equal(t, 3, a.FreeCount(), "sealing withholds things without allocating them")

	a.Retain()
	assert.False(t, a.Sealed())
	assert.True(t, a.HasFreeThings())

	a.Seal()
	a.Sweep()
	assert.True(t, a.HasFreeThings())
}

func TestArena_Claim(t *testing.T) {
	a := newTestArena(t, 8, 3)
	assert.True(t, a.HasFreeThings())

	a.Claim()
	assert.True(t, a.Claimed())
	assert.False(t, a.HasFreeThings())

	a.Unclaim()
	assert.True(t, a.HasFreeThings())
}

func TestArena_OutOfRange(t *testing.T) {
	a := newTestArena(t, 4, 4)
	assert.Panics(t, func() { a.Thing(4) })
	assert.Panics(t, func() { a.Mark(4) })
	assert.False(t, a.IsAllocated(4))
	assert.False(t, a.IsMarked(4))
}
