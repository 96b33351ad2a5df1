package arena

import "fmt"

// CursorKind is the logical position of a chain's cursor.
type CursorKind uint8

const (
	// CursorAtHead means no arena precedes the cursor.
	CursorAtHead CursorKind = iota
	// CursorAtEnd means every arena precedes the cursor.
	CursorAtEnd
	// CursorBefore means the cursor sits right before a specific arena.
	CursorBefore
)

func (k CursorKind) String() string {
	switch k {
	case CursorAtHead:
		return "AtHead"
	case CursorAtEnd:
		return "AtEnd"
	case CursorBefore:
		return "Before"
	default:
		return fmt.Sprintf("CursorKind(%d)", uint8(k))
	}
}

// Position describes where the cursor is. Arena is the arena following the
// cursor, nil when the cursor is at the end.
type Position struct {
	Kind  CursorKind
	Arena *Arena
}

// Chain is an ordered list of arenas of one size class split by a cursor.
//
// Arenas before the cursor are full; the arena right after it, if any, has at
// least one free thing. The zero value is an empty chain.
type Chain struct {
	head *Arena
	tail *Arena
	// cursor is the last arena before the cursor, nil when the cursor is at the head.
	cursor *Arena
	n      int
}

func (c *Chain) afterCursor() *Arena {
	if c.cursor == nil {
		return c.head
	}
	return c.cursor.next
}

// link inserts a right after the cursor.
func (c *Chain) link(a *Arena) {
	a.next = c.afterCursor()
	if c.cursor == nil {
		c.head = a
	} else {
		c.cursor.next = a
	}
	if a.next == nil {
		c.tail = a
	}
	c.n++
}

// Head returns the first arena of the chain.
func (c *Chain) Head() *Arena { return c.head }

// Len returns the number of arenas in the chain.
func (c *Chain) Len() int { return c.n }

// IsEmpty reports whether the chain holds no arenas.
func (c *Chain) IsEmpty() bool { return c.head == nil }

// IsCursorAtHead reports whether no arena precedes the cursor.
func (c *Chain) IsCursorAtHead() bool { return c.cursor == nil }

// IsCursorAtEnd reports whether no arena follows the cursor.
func (c *Chain) IsCursorAtEnd() bool { return c.afterCursor() == nil }

// Position returns the cursor's logical position.
func (c *Chain) Position() Position {
	next := c.afterCursor()
	switch {
	case c.cursor == nil:
		return Position{Kind: CursorAtHead, Arena: next}
	case next == nil:
		return Position{Kind: CursorAtEnd}
	default:
		return Position{Kind: CursorBefore, Arena: next}
	}
}

// Append adds a at the tail. If the cursor was at the end and a is full, the
// cursor moves past a.
func (c *Chain) Append(a *Arena) {
	atEnd := c.IsCursorAtEnd()
	a.next = nil
	if c.tail == nil {
		c.head = a
	} else {
		c.tail.next = a
	}
	c.tail = a
	c.n++
	if atEnd && !a.HasFreeThings() {
		c.cursor = a
	}
}

// InsertAtCursor splices a in at the cursor. The cursor moves past a when a
// has no free things and stays in front of it otherwise.
func (c *Chain) InsertAtCursor(a *Arena) {
	c.link(a)
	if !a.HasFreeThings() {
		c.cursor = a
	}
}

// InsertBeforeCursor splices a in at the cursor and moves the cursor past it.
// The caller guarantees a is full or claimed by a free list.
func (c *Chain) InsertBeforeCursor(a *Arena) {
	c.link(a)
	c.cursor = a
}

// TakeNextArena claims the arena following the cursor and moves the cursor
// past it and any full arenas behind it. It returns nil when the cursor is at
// the end.
func (c *Chain) TakeNextArena() *Arena {
	a := c.afterCursor()
	if a == nil {
		return nil
	}
	a.Claim()
	c.cursor = a
	c.skipFull()
	return a
}

// MoveCursorToEnd places the cursor after the last arena. Arenas it passes
// that still have free things are sealed until their next sweep.
func (c *Chain) MoveCursorToEnd() {
	for a := c.afterCursor(); a != nil; a = a.next {
		if a.HasFreeThings() {
			a.Seal()
		}
	}
	c.cursor = c.tail
}

// skipFull advances the cursor until the arena after it has free things.
func (c *Chain) skipFull() {
	for next := c.afterCursor(); next != nil && !next.HasFreeThings(); next = next.next {
		c.cursor = next
	}
}

// InsertListWithCursorAtEnd splices every arena of other in at this chain's
// cursor and moves the cursor past them. other must have its cursor at the end
// and is left empty.
func (c *Chain) InsertListWithCursorAtEnd(other *Chain) {
	if !other.IsCursorAtEnd() {
		panic("arena: inserted chain must have its cursor at the end")
	}
	if other.head == nil {
		return
	}
	next := c.afterCursor()
	other.tail.next = next
	if c.cursor == nil {
		c.head = other.head
	} else {
		c.cursor.next = other.head
	}
	if next == nil {
		c.tail = other.tail
	}
	c.cursor = other.tail
	c.n += other.n
	*other = Chain{}
}

// TakeAll unlinks every arena into a List, leaving the chain empty.
func (c *Chain) TakeAll() List {
	out := List{head: c.head, tail: c.tail, n: c.n}
	*c = Chain{}
	return out
}

// Walk calls fn for each arena in order until fn returns false.
func (c *Chain) Walk(fn func(*Arena) bool) {
	for a := c.head; a != nil; a = a.next {
		if !fn(a) {
			return
		}
	}
}

// Check panics if the chain's structure or cursor partition is broken.
func (c *Chain) Check() {
	if c.head == nil {
		if c.tail != nil || c.cursor != nil || c.n != 0 {
			panic(fmt.Sprintf("arena: empty chain with tail=%v cursor=%v len=%d", c.tail, c.cursor, c.n))
		}
		return
	}

	beforeCursor := c.cursor != nil
	n := 0
	var last *Arena
	for a := c.head; a != nil; a = a.next {
		n++
		if n > c.n {
			panic(fmt.Sprintf("arena: chain longer than recorded length %d", c.n))
		}
		if beforeCursor && a.HasFreeThings() {
			panic(fmt.Sprintf("arena: %v before the cursor has free things", a))
		}
		if a == c.cursor {
			beforeCursor = false
		}
		last = a
	}
	if n != c.n {
		panic(fmt.Sprintf("arena: chain has %d arenas, recorded %d", n, c.n))
	}
	if last != c.tail {
		panic("arena: chain tail does not match last arena")
	}
	if beforeCursor {
		panic("arena: chain cursor is not linked into the chain")
	}
	if next := c.afterCursor(); next != nil && !next.HasFreeThings() {
		panic(fmt.Sprintf("arena: %v at the cursor has no free things", next))
	}
}
