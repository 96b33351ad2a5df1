// Package sizeclass defines the closed set of thing sizes served by the allocator.
//
// Every arena holds things of exactly one class. The number of things per arena
// is derived from the arena size, the reserved header and the thing size.
package sizeclass

import "fmt"

const (
	// ArenaSize is the fixed size of an arena in bytes.
	ArenaSize = 4096
	// HeaderSize is the number of bytes reserved at the start of every arena.
	HeaderSize = 32
	// MinThingSize is the size of the smallest class.
	MinThingSize = 16
	// MaxThingsPerArena bounds the bucket table of any class.
	MaxThingsPerArena = (ArenaSize - HeaderSize) / MinThingSize
)

// Class identifies a size class.
type Class uint8

const (
	Class16 Class = iota
	Class24
	Class32
	Class48
	Class64
	Class96
	Class128
	Class256

	// Count is the number of size classes.
	Count = int(iota)
)

var thingSizes = [Count]int{16, 24, 32, 48, 64, 96, 128, 256}

// All returns every class in ascending size order.
func All() []Class {
	out := make([]Class, Count)
	for i := range out {
		out[i] = Class(i)
	}
	return out
}

// Valid reports whether c names a known class.
func (c Class) Valid() bool {
	return int(c) < Count
}

// ThingSize returns the size in bytes of one thing of this class.
func (c Class) ThingSize() int {
	return thingSizes[c]
}

// ThingsPerArena returns how many things of this class fit in one arena.
func (c Class) ThingsPerArena() int {
	return (ArenaSize - HeaderSize) / thingSizes[c]
}

func (c Class) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
	return fmt.Sprintf("size%d", thingSizes[c])
}

// ForSize returns the smallest class able to hold size bytes.
func ForSize(size int) (Class, bool) {
	if size <= 0 {
		return 0, false
	}
	for i, s := range thingSizes {
		if size <= s {
			return Class(i), true
		}
	}
	return 0, false
}
