package arena

import "testing"

const testThingSize = 16

var nextTestID uint32

// newTestArena returns an arena with capacity things of which free are unallocated.
func newTestArena(t testing.TB, capacity, free int) *Arena {
	t.Helper()
	nextTestID++
	a := New(nextTestID, testThingSize, make([]byte, HeaderSize+capacity*testThingSize))
	for i := 0; i < capacity-free; i++ {
		if _, ok := a.Allocate(0); !ok {
			t.Fatalf("allocation %d failed", i)
		}
	}
	return a
}

func chainIDs(c *Chain) []uint32 {
	var ids []uint32
	c.Walk(func(a *Arena) bool {
		ids = append(ids, a.ID())
		return true
	})
	return ids
}
