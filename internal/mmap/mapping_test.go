package mmap

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pageSize = os.Getpagesize()

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(16 * pageSize)
	require.NoError(t, err)

	data := m.Bytes()
	require.Len(t, data, 16*pageSize)
	assert.Equal(t, 16*pageSize, m.Size())
	assert.Equal(t, make([]byte, len(data)), data, "fresh mappings are zero-filled")

	data[0] = 42
	data[len(data)-1] = 7
	assert.Equal(t, byte(42), m.Bytes()[0])

	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())
	require.NoError(t, m.Close())
}

func TestMapAnon_InvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := MapAnon(size)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
}

func TestMapping_AdviseFreeZeroes(t *testing.T) {
	m, err := MapAnon(4 * pageSize)
	require.NoError(t, err)
	defer m.Close()

	data := m.Bytes()
	for i := range data {
		data[i] = 0xFF
	}

	require.NoError(t, m.Advise(pageSize, 2*pageSize, AdviseFree))
	assert.Equal(t, make([]byte, 2*pageSize), data[pageSize:3*pageSize])
	assert.Equal(t, byte(0xFF), data[0], "pages outside the range keep their contents")
	assert.Equal(t, byte(0xFF), data[3*pageSize])
}

func TestMapping_Advise(t *testing.T) {
	m, err := MapAnon(4 * pageSize)
	require.NoError(t, err)

	assert.NoError(t, m.Advise(0, m.Size(), AdviseWillNeed))
	assert.NoError(t, m.Advise(0, m.Size(), AdviseNormal))
	assert.NoError(t, m.Advise(0, 0, AdviseFree))
	assert.ErrorIs(t, m.Advise(0, m.Size()+1, AdviseFree), ErrOutOfBounds)
	assert.ErrorIs(t, m.Advise(-1, 1, AdviseFree), ErrOutOfBounds)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Advise(0, 1, AdviseFree), ErrClosed)
}

func TestAdvice_String(t *testing.T) {
	assert.Equal(t, "normal", AdviseNormal.String())
	assert.Equal(t, "willneed", AdviseWillNeed.String())
	assert.Equal(t, "free", AdviseFree.String())
}
