package sizeclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThingsPerArena(t *testing.T) {
	assert.Equal(t, MaxThingsPerArena, Class16.ThingsPerArena())
	assert.Equal(t, 254, Class16.ThingsPerArena())
	assert.Equal(t, 15, Class256.ThingsPerArena())

	for _, c := range All() {
		assert.LessOrEqual(t, c.ThingsPerArena(), MaxThingsPerArena)
		assert.LessOrEqual(t, HeaderSize+c.ThingsPerArena()*c.ThingSize(), ArenaSize)
	}
}

func TestForSize(t *testing.T) {
	tests := []struct {
		size int
		want Class
		ok   bool
	}{
		{1, Class16, true},
		{16, Class16, true},
		{17, Class24, true},
		{100, Class128, true},
		{256, Class256, true},
		{257, 0, false},
		{0, 0, false},
	}

	for _, tt := range tests {
		got, ok := ForSize(tt.size)
		assert.Equal(t, tt.ok, ok, "size=%d", tt.size)
		if tt.ok {
			assert.Equal(t, tt.want, got, "size=%d", tt.size)
		}
	}
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "size48", Class48.String())
	assert.Equal(t, "Class(200)", Class(200).String())
	assert.False(t, Class(Count).Valid())
}
