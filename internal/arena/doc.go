// Package arena provides the fixed-size arenas of the allocator and the
// intrusive containers that own them.
//
// # Ownership
//
// An Arena is linked into at most one container at a time through its
// intrusive next pointer. Containers hand arenas to each other by splicing,
// never by copying:
//
//	Chain ──TakeAll──▶ List (sweep queue) ──PopFront──▶ BucketTable ──ToArenaChain──▶ Chain
//
// # Chains
//
// A Chain is partitioned by a cursor into a prefix of full arenas and a suffix
// that starts with an arena holding at least one free thing. Arenas claimed by
// an allocator free list count as full. Check panics when the partition is
// broken; this only happens on a programming error.
//
// # Bucket tables
//
// BucketTable sorts swept arenas by free-thing count and stitches them back
// into a Chain ordered from least free to most free, so allocation fills nearly
// full arenas first and emptier arenas have a chance to drain completely.
package arena
