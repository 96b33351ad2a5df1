package arena

import "fmt"

// BucketTable sorts arenas of one size class by their free-thing count.
//
// Bucket i holds the arenas that had exactly i free things when inserted.
// A table is single-use: call Reset before filling it again.
type BucketTable struct {
	buckets []List
	n       int
}

// NewBucketTable returns a table for a class with thingsPerArena things per arena.
func NewBucketTable(thingsPerArena int) *BucketTable {
	if thingsPerArena <= 0 {
		panic(fmt.Sprintf("arena: invalid things per arena %d", thingsPerArena))
	}
	return &BucketTable{buckets: make([]List, thingsPerArena+1)}
}

// ThingsPerArena returns the capacity the table was sized for.
func (t *BucketTable) ThingsPerArena() int { return len(t.buckets) - 1 }

// Len returns the number of arenas currently held across all buckets.
func (t *BucketTable) Len() int { return t.n }

// InsertAt appends a to the bucket for freeCount.
func (t *BucketTable) InsertAt(a *Arena, freeCount int) {
	if freeCount < 0 || freeCount >= len(t.buckets) {
		panic(fmt.Sprintf("arena: free count %d out of range [0,%d]", freeCount, len(t.buckets)-1))
	}
	t.buckets[freeCount].PushBack(a)
	t.n++
}

// ExtractEmpty removes and returns the run of completely empty arenas.
func (t *BucketTable) ExtractEmpty() List {
	empty := t.buckets[len(t.buckets)-1].TakeAll()
	t.n -= empty.n
	return empty
}

// ToArenaChain stitches the buckets from least free to most free into one
// chain. The cursor sits before the first arena that has any free thing.
//
// The buckets keep referring to their runs; the table must be Reset before reuse.
func (t *BucketTable) ToArenaChain() Chain {
	var c Chain
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.head == nil {
			continue
		}
		if c.head == nil {
			c.head = b.head
		} else {
			c.tail.next = b.head
		}
		c.tail = b.tail
		c.n += b.n
		if i == 0 {
			c.cursor = b.tail
		}
	}
	if c.tail != nil {
		c.tail.next = nil
	}
	return c
}

// Reset drops every bucket so the table can be filled again.
func (t *BucketTable) Reset() {
	for i := range t.buckets {
		t.buckets[i] = List{}
	}
	t.n = 0
}
