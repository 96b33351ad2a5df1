package arena

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketTable_RoundTrip(t *testing.T) {
	table := NewBucketTable(8)

	empty := newTestArena(t, 8, 8)
	full := newTestArena(t, 8, 0)
	partial := newTestArena(t, 8, 3)

	table.InsertAt(empty, empty.FreeCount())
	table.InsertAt(full, full.FreeCount())
	table.InsertAt(partial, partial.FreeCount())
	require.Equal(t, 3, table.Len())

	extracted := table.ExtractEmpty()
	assert.Equal(t, 1, extracted.Len())
	assert.Same(t, empty, extracted.Head())
	assert.Equal(t, 2, table.Len())

	c := table.ToArenaChain()
	c.Check()
	assert.Equal(t, []uint32{full.ID(), partial.ID()}, chainIDs(&c))
	assert.Equal(t, Position{Kind: CursorBefore, Arena: partial}, c.Position())
}

func TestBucketTable_OrderLeastFreeFirst(t *testing.T) {
	table := NewBucketTable(8)
	for _, free := range []int{5, 1, 7, 1, 0, 3} {
		table.InsertAt(newTestArena(t, 8, free), free)
	}

	c := table.ToArenaChain()
	c.Check()

	var frees []int
	c.Walk(func(a *Arena) bool {
		frees = append(frees, a.FreeCount())
		return true
	})
	assert.Equal(t, []int{0, 1, 1, 3, 5, 7}, frees)
	assert.Equal(t, 1, c.Position().Arena.FreeCount())
}

func TestBucketTable_AllFull(t *testing.T) {
	table := NewBucketTable(4)
	table.InsertAt(newTestArena(t, 4, 0), 0)
	table.InsertAt(newTestArena(t, 4, 0), 0)

	c := table.ToArenaChain()
	c.Check()
	assert.True(t, c.IsCursorAtEnd())
	assert.Equal(t, 2, c.Len())
}

func TestBucketTable_Empty(t *testing.T) {
	table := NewBucketTable(4)
	empty := table.ExtractEmpty()
	assert.True(t, empty.IsEmpty())
	c := table.ToArenaChain()
	c.Check()
	assert.True(t, c.IsEmpty())
}

func TestBucketTable_InsertOutOfRange(t *testing.T) {
	table := NewBucketTable(4)
	assert.Panics(t, func() { table.InsertAt(newTestArena(t, 4, 0), 5) })
	assert.Panics(t, func() { table.InsertAt(newTestArena(t, 4, 0), -1) })
	assert.Panics(t, func() { NewBucketTable(0) })
}

func TestBucketTable_Reset(t *testing.T) {
	table := NewBucketTable(4)
	table.InsertAt(newTestArena(t, 4, 2), 2)
	_ = table.ToArenaChain()

	table.Reset()
	assert.Equal(t, 0, table.Len())
	c := table.ToArenaChain()
	assert.True(t, c.IsEmpty())
}

func TestBucketTable_NoLossNoDuplication(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	const capacity = 16

	for round := 0; round < 100; round++ {
		table := NewBucketTable(capacity)
		n := rng.IntN(64)
		inserted := make(map[uint32]bool, n)
		for i := 0; i < n; i++ {
			free := rng.IntN(capacity + 1)
			a := newTestArena(t, capacity, free)
			inserted[a.ID()] = true
			table.InsertAt(a, free)
		}

		seen := make(map[uint32]bool, n)
		empty := table.ExtractEmpty()
		empty.Walk(func(a *Arena) bool {
			assert.True(t, a.IsEmpty())
			assert.False(t, seen[a.ID()], "duplicate arena %d", a.ID())
			seen[a.ID()] = true
			return true
		})

		c := table.ToArenaChain()
		c.Check()
		c.Walk(func(a *Arena) bool {
			assert.False(t, a.IsEmpty())
			assert.False(t, seen[a.ID()], "duplicate arena %d", a.ID())
			seen[a.ID()] = true
			return true
		})

		assert.Equal(t, n, empty.Len()+c.Len())
		assert.Equal(t, inserted, seen)
	}
}
