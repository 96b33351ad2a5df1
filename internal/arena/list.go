package arena

// List is a FIFO of arenas linked through their next pointers.
// It is used for sweep queues and bucket runs.
type List struct {
	head *Arena
	tail *Arena
	n    int
}

// PushBack appends a at the end of the list.
func (l *List) PushBack(a *Arena) {
	a.next = nil
	if l.tail == nil {
		l.head = a
	} else {
		l.tail.next = a
	}
	l.tail = a
	l.n++
}

// PopFront unlinks and returns the first arena, or nil when the list is empty.
func (l *List) PopFront() *Arena {
	a := l.head
	if a == nil {
		return nil
	}
	l.head = a.next
	if l.head == nil {
		l.tail = nil
	}
	a.next = nil
	l.n--
	return a
}

// Concat moves every arena of other to the end of l in O(1).
func (l *List) Concat(other *List) {
	if other.head == nil {
		return
	}
	if l.tail == nil {
		l.head = other.head
	} else {
		l.tail.next = other.head
	}
	l.tail = other.tail
	l.n += other.n
	*other = List{}
}

// TakeAll moves the whole list out, leaving l empty.
func (l *List) TakeAll() List {
	out := *l
	*l = List{}
	return out
}

// Head returns the first arena without unlinking it.
func (l *List) Head() *Arena { return l.head }

// Len returns the number of arenas in the list.
func (l *List) Len() int { return l.n }

// IsEmpty reports whether the list holds no arenas.
func (l *List) IsEmpty() bool { return l.head == nil }

// Walk calls fn for each arena in order until fn returns false.
func (l *List) Walk(fn func(*Arena) bool) {
	for a := l.head; a != nil; a = a.next {
		if !fn(a) {
			return
		}
	}
}
