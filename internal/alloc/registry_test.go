package alloc

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/gcarena/internal/arena"
	"github.com/hupe1980/gcarena/internal/sizeclass"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExhausted = errors.New("source exhausted")

// fakeSource hands out heap-backed arenas and records releases.
type fakeSource struct {
	mu       sync.Mutex
	nextID   uint32
	limit    int // 0 means unlimited
	requests int
	live     map[uint32]bool
	released []uint32
}

func newFakeSource(limit int) *fakeSource {
	return &fakeSource{limit: limit, nextID: 1000, live: make(map[uint32]bool)}
}

func (s *fakeSource) Allocate() (uint32, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if s.limit > 0 && len(s.live) >= s.limit {
		return 0, nil, errExhausted
	}
	s.nextID++
	s.live[s.nextID] = true
	return s.nextID, make([]byte, sizeclass.ArenaSize), nil
}

func (s *fakeSource) Release(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live[id] {
		panic("release of unknown arena")
	}
	delete(s.live, id)
	s.released = append(s.released, id)
}

func (s *fakeSource) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *fakeSource) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// newSmallArena returns an arena of 16-byte things with room for eight.
func newSmallArena(id uint32, free int) *arena.Arena {
	a := arena.New(id, 16, make([]byte, arena.HeaderSize+8*16))
	for i := 0; i < 8-free; i++ {
		a.Allocate(0)
	}
	return a
}

func allocateN(t *testing.T, r *Registry, c sizeclass.Class, n int) []Thing {
	t.Helper()
	things := make([]Thing, 0, n)
	for i := 0; i < n; i++ {
		th, ok := r.AllocateFast(c)
		if !ok {
			var err error
			th, err = r.AllocateSlow(c)
			require.NoError(t, err)
		}
		things = append(things, th)
	}
	return things
}

func TestRegistry_Placeholder(t *testing.T) {
	r := New(newFakeSource(0))

	for _, c := range sizeclass.All() {
		fl := r.FreeList(c)
		require.NotNil(t, fl.Arena)
		assert.Same(t, arena.Placeholder(), fl.Arena)

		_, ok := r.AllocateFast(c)
		assert.False(t, ok)
		assert.Equal(t, SweepDone, r.SweepState(c))
	}
	r.Check()
}

func TestRegistry_AllocateSlowScenario(t *testing.T) {
	src := newFakeSource(0)
	r := New(src)
	c := sizeclass.Class16

	full := newSmallArena(1, 0)
	empty := newSmallArena(2, 8)
	cl := &r.classes[c]
	cl.chain.Append(full)
	cl.chain.Append(empty)
	r.Check()

	first, err := r.AllocateSlow(c)
	require.NoError(t, err)
	assert.Same(t, empty, first.Arena)

	second, err := r.AllocateSlow(c)
	require.NoError(t, err)
	assert.Same(t, empty, second.Arena)
	assert.NotEqual(t, first.Slot, second.Slot)

	for i := 0; i < 6; i++ {
		th, ok := r.AllocateFast(c)
		require.True(t, ok)
		assert.Same(t, empty, th.Arena)
	}
	assert.Equal(t, 0, empty.FreeCount())
	assert.Equal(t, 0, src.Requests())

	_, ok := r.AllocateFast(c)
	require.False(t, ok)

	third, err := r.AllocateSlow(c)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Requests(), "exhausted chain must fall through to the source")
	assert.NotSame(t, empty, third.Arena)
	assert.Equal(t, 3, cl.chain.Len())
	r.Check()
}

func TestRegistry_FillsArenasInOrder(t *testing.T) {
	src := newFakeSource(0)
	r := New(src)
	c := sizeclass.Class256
	per := c.ThingsPerArena()

	things := allocateN(t, r, c, per+1)
	assert.Equal(t, 2, src.Requests())
	assert.Same(t, things[0].Arena, things[per-1].Arena)
	assert.NotSame(t, things[0].Arena, things[per].Arena)

	for _, th := range things {
		assert.Len(t, th.Bytes(), c.ThingSize())
	}
	assert.Equal(t, uint64(2), r.Stats().ArenasCreated)
	r.Check()
}

func TestRegistry_OutOfMemory(t *testing.T) {
	src := newFakeSource(1)
	r := New(src)
	c := sizeclass.Class256

	allocateN(t, r, c, c.ThingsPerArena())

	_, err := r.AllocateSlow(c)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfMemory)
	assert.ErrorIs(t, err, errExhausted)

	// The failure is not retried internally.
	assert.Equal(t, 2, src.Requests())
	r.Check()
}

func TestRegistry_ForegroundSweep(t *testing.T) {
	src := newFakeSource(0)
	r := New(src)
	c := sizeclass.Class256
	per := c.ThingsPerArena()

	things := allocateN(t, r, c, 3*per)
	require.Equal(t, 3, src.Live())

	// Arena 0: all live. Arena 1: two live. Arena 2: garbage.
	for _, th := range things[:per] {
		th.Arena.Mark(th.Slot)
	}
	things[per].Arena.Mark(things[per].Slot)
	things[per+3].Arena.Mark(things[per+3].Slot)

	res := r.QueueForForegroundSweep(c)
	assert.Equal(t, 3, res.Arenas)
	assert.Equal(t, 2*per-2, res.Freed)
	assert.Equal(t, SweepDone, r.SweepState(c))
	assert.Equal(t, 2, src.Live(), "the empty arena goes back to the source")
	assert.Equal(t, uint64(1), r.Stats().ArenasDestroyed)
	r.Check()

	cl := &r.classes[c]
	pos := cl.chain.Position()
	require.Equal(t, arena.CursorBefore, pos.Kind)
	assert.Same(t, things[per].Arena, pos.Arena)
	assert.Equal(t, per-2, r.ClassStats(c).FreeThings)

	// Allocation resumes in the partially free arena.
	th, err := r.AllocateSlow(c)
	require.NoError(t, err)
	assert.Same(t, things[per].Arena, th.Arena)
	assert.Equal(t, 3, src.Requests())
}

func TestRegistry_BackgroundSweepBlocksSlowPath(t *testing.T) {
	src := newFakeSource(0)
	r := New(src)
	c := sizeclass.Class128

	things := allocateN(t, r, c, 5)
	things[0].Arena.Mark(things[0].Slot)

	require.True(t, r.QueueForBackgroundSweep(c))
	assert.Equal(t, SweepRunning, r.SweepState(c))
	assert.False(t, r.QueueForBackgroundSweep(c), "already queued")
	assert.Same(t, arena.Placeholder(), r.FreeList(c).Arena)
	r.Check()

	got := make(chan Thing, 1)
	go func() {
		th, err := r.AllocateSlow(c)
		assert.NoError(t, err)
		got <- th
	}()

	select {
	case <-got:
		t.Fatal("slow path must wait for the sweep to be merged")
	case <-time.After(20 * time.Millisecond):
	}

	res := r.SweepQueued(c, nil)
	assert.Equal(t, 1, res.Arenas)
	assert.Equal(t, 4, res.Freed)
	r.MergeSweptArenas(c)

	select {
	case th := <-got:
		assert.Same(t, things[0].Arena, th.Arena)
	case <-time.After(time.Second):
		t.Fatal("slow path did not resume after merge")
	}
	assert.Equal(t, SweepDone, r.SweepState(c))
	assert.Equal(t, 1, src.Requests())
	r.Check()
}

func TestRegistry_QueueEmptyClass(t *testing.T) {
	r := New(newFakeSource(0))
	assert.False(t, r.QueueForBackgroundSweep(sizeclass.Class64))
	assert.Equal(t, SweepDone, r.SweepState(sizeclass.Class64))
}

func TestRegistry_SlowPathMergesSweptQueue(t *testing.T) {
	src := newFakeSource(0)
	r := New(src)
	c := sizeclass.Class64

	things := allocateN(t, r, c, 3)
	things[1].Arena.Mark(things[1].Slot)
	require.True(t, r.QueueForBackgroundSweep(c))
	r.SweepQueued(c, nil)

	// Swept but not merged while the flag already reads Done.
	r.classes[c].state.Store(uint32(SweepDone))

	th, err := r.AllocateSlow(c)
	require.NoError(t, err)
	assert.Same(t, things[1].Arena, th.Arena)
	assert.Equal(t, 1, src.Requests())
	r.Check()
}

func TestRegistry_CancelledSweepRetains(t *testing.T) {
	src := newFakeSource(0)
	r := New(src)
	c := sizeclass.Class256
	per := c.ThingsPerArena()

	allocateN(t, r, c, 2*per)
	require.True(t, r.QueueForBackgroundSweep(c))

	calls := 0
	res := r.SweepQueued(c, func() bool {
		calls++
		return calls > 1
	})
	assert.Equal(t, 1, res.Arenas)
	assert.Equal(t, 1, res.Retained)
	assert.Equal(t, per, res.Freed)

	r.MergeSweptArenas(c)
	assert.Equal(t, 1, src.Live(), "the swept arena was empty, the retained one keeps its things")
	assert.Equal(t, SweepDone, r.SweepState(c))
	r.Check()
}

func TestRegistry_CheckDetectsDuplicate(t *testing.T) {
	r := New(newFakeSource(0))
	c := sizeclass.Class32

	cl := &r.classes[c]
	a := newSmallArena(1, 0)
	cl.chain.Append(a)
	r.Check()

	cl.swept.PushBack(newSmallArena(1, 0))
	assert.Panics(t, r.Check)
}

func TestRegistry_Close(t *testing.T) {
	src := newFakeSource(0)
	r := New(src)

	allocateN(t, r, sizeclass.Class16, 300)
	allocateN(t, r, sizeclass.Class96, 10)
	require.Greater(t, src.Live(), 1)

	r.Close()
	assert.Equal(t, 0, src.Live())
	assert.Same(t, arena.Placeholder(), r.FreeList(sizeclass.Class16).Arena)
	r.Check()
}
