package chunk

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/gcarena/internal/conv"
	"github.com/hupe1980/gcarena/internal/mmap"
	"github.com/hupe1980/gcarena/internal/resource"
	"github.com/hupe1980/gcarena/internal/sizeclass"
)

const (
	// DefaultArenasPerChunk is the number of arenas carved out of one chunk.
	DefaultArenasPerChunk = 64
)

// ErrChunkLimit is returned when the pool may not map another chunk.
var ErrChunkLimit = errors.New("chunk: chunk limit reached")

// Config configures a Pool.
type Config struct {
	// ArenasPerChunk is the number of arenas per chunk. Defaults to DefaultArenasPerChunk.
	ArenasPerChunk int
	// MaxChunks caps the number of mapped chunks. 0 means unlimited.
	MaxChunks int
}

// Stats is a snapshot of pool counters.
type Stats struct {
	ChunksMapped    uint64 // Historical: chunks ever mapped
	ChunksUnmapped  uint64 // Historical: chunks returned to the OS
	ChunksPurged    uint64 // Historical: empty chunks whose pages were released but kept mapped
	ActiveChunks    int    // Current: mapped chunks
	AvailableArenas int    // Current: arenas ready to hand out
	ArenasAllocated uint64 // Historical: arenas handed out
	ArenasReleased  uint64 // Historical: arenas given back
}

type chunk struct {
	id      uint32
	mapping *mmap.Mapping
	free    *bitset.BitSet // set bit = arena slot available
	nfree   int
	purged  bool // pages handed back while empty
}

type atomicStats struct {
	ChunksMapped    atomic.Uint64
	ChunksUnmapped  atomic.Uint64
	ChunksPurged    atomic.Uint64
	ArenasAllocated atomic.Uint64
	ArenasReleased  atomic.Uint64
}

// Pool hands out arena memory. It is safe for concurrent use.
type Pool struct {
	mu             sync.Mutex
	arenasPerChunk int
	maxChunks      int
	chunks         []*chunk // indexed by chunk id, nil once unmapped
	active         int
	available      int

	controller *resource.Controller
	logger     *slog.Logger
	stats      atomicStats
}

// Option is a configuration option for Pool.
type Option func(*Pool)

// WithController makes the pool account chunk memory and decommit rate
// against the given controller.
func WithController(c *resource.Controller) Option {
	return func(p *Pool) {
		p.controller = c
	}
}

// WithLogger sets the logger for the pool.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// New creates an empty pool. No memory is mapped until the first Allocate or Grow.
func New(cfg Config, opts ...Option) *Pool {
	if cfg.ArenasPerChunk <= 0 {
		cfg.ArenasPerChunk = DefaultArenasPerChunk
	}
	p := &Pool{
		arenasPerChunk: cfg.ArenasPerChunk,
		maxChunks:      cfg.MaxChunks,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// ChunkBytes returns the size of one chunk.
func (p *Pool) ChunkBytes() int {
	return p.arenasPerChunk * sizeclass.ArenaSize
}

// Allocate hands out one arena-sized block and its identifier.
// The memory may hold data from a previous owner.
func (p *Pool) Allocate() (uint32, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.firstWithFreeLocked()
	if c == nil {
		var err error
		if c, err = p.growLocked(); err != nil {
			return 0, nil, err
		}
	}

	slot, _ := c.free.NextSet(0)
	c.free.Clear(slot)
	c.nfree--
	c.purged = false
	p.available--
	p.stats.ArenasAllocated.Add(1)

	off := int(slot) * sizeclass.ArenaSize
	data := c.mapping.Bytes()[off : off+sizeclass.ArenaSize : off+sizeclass.ArenaSize]
	return c.id*uint32(p.arenasPerChunk) + uint32(slot), data, nil
}

func (p *Pool) locate(id uint32) (int, uint) {
	n, err := conv.Uint32ToInt(id)
	if err != nil {
		panic(fmt.Sprintf("chunk: arena id %d: %v", id, err))
	}
	return n / p.arenasPerChunk, uint(n % p.arenasPerChunk)
}

// Release gives the arena with the given id back to the pool.
// Releasing an arena twice is a programming error and panics.
func (p *Pool) Release(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	chunkID, slot := p.locate(id)
	if chunkID >= len(p.chunks) || p.chunks[chunkID] == nil {
		panic(fmt.Sprintf("chunk: release of arena %d from unmapped chunk %d", id, chunkID))
	}
	c := p.chunks[chunkID]
	if c.free.Test(slot) {
		panic(fmt.Sprintf("chunk: arena %d released twice", id))
	}
	c.free.Set(slot)
	c.nfree++
	p.available++
	p.stats.ArenasReleased.Add(1)
}

// Grow maps one more chunk so later allocations find arenas ready and asks
// the kernel to fault its pages in.
func (p *Pool) Grow() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.growLocked()
	if err != nil {
		return err
	}
	if err := c.mapping.Advise(0, c.mapping.Size(), mmap.AdviseWillNeed); err != nil {
		p.logger.Debug("Chunk prefault failed", "chunk", c.id, "error", err)
	}
	return nil
}

// Available returns the number of arenas ready to hand out.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Decommit unmaps fully empty chunks, keeping keepEmpty of them mapped.
// It stops early when the controller's decommit budget is exhausted and
// returns the number of chunks unmapped. Empty chunks that stay mapped have
// their pages released to the OS.
func (p *Pool) Decommit(keepEmpty int) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	empty := 0
	for _, c := range p.chunks {
		if c != nil && c.nfree == p.arenasPerChunk {
			empty++
		}
	}

	unmapped := 0
	for i, c := range p.chunks {
		if empty <= keepEmpty {
			break
		}
		if c == nil || c.nfree != p.arenasPerChunk {
			continue
		}
		if !p.controller.AllowDecommit(p.ChunkBytes()) {
			break
		}
		if err := p.unmapLocked(c); err != nil {
			p.logger.Warn("Failed to unmap chunk", "chunk", c.id, "error", err)
		}
		p.chunks[i] = nil
		empty--
		unmapped++
	}
	for _, c := range p.chunks {
		if c == nil || c.purged || c.nfree != p.arenasPerChunk {
			continue
		}
		if err := c.mapping.Advise(0, c.mapping.Size(), mmap.AdviseFree); err != nil {
			p.logger.Warn("Failed to purge chunk", "chunk", c.id, "error", err)
			continue
		}
		c.purged = true
		p.stats.ChunksPurged.Add(1)
	}
	if unmapped > 0 {
		p.logger.Debug("Chunks decommitted", "count", unmapped, "active", p.active)
	}
	return unmapped
}

// Stats returns the current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	active, available := p.active, p.available
	p.mu.Unlock()

	return Stats{
		ChunksMapped:    p.stats.ChunksMapped.Load(),
		ChunksUnmapped:  p.stats.ChunksUnmapped.Load(),
		ChunksPurged:    p.stats.ChunksPurged.Load(),
		ActiveChunks:    active,
		AvailableArenas: available,
		ArenasAllocated: p.stats.ArenasAllocated.Load(),
		ArenasReleased:  p.stats.ArenasReleased.Load(),
	}
}

// Close unmaps every chunk. Arenas handed out earlier become invalid.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for i, c := range p.chunks {
		if c == nil {
			continue
		}
		if err := p.unmapLocked(c); err != nil {
			errs = append(errs, err)
		}
		p.chunks[i] = nil
	}
	p.chunks = nil
	p.available = 0
	return errors.Join(errs...)
}

func (p *Pool) firstWithFreeLocked() *chunk {
	for _, c := range p.chunks {
		if c != nil && c.nfree > 0 {
			return c
		}
	}
	return nil
}

func (p *Pool) growLocked() (*chunk, error) {
	if p.maxChunks > 0 && p.active >= p.maxChunks {
		return nil, ErrChunkLimit
	}

	size := p.ChunkBytes()
	if err := p.controller.AcquireMemory(int64(size)); err != nil {
		return nil, fmt.Errorf("chunk: reserve %d bytes: %w", size, err)
	}

	mapping, err := mmap.MapAnon(size)
	if err != nil {
		p.controller.ReleaseMemory(int64(size))
		return nil, fmt.Errorf("chunk: map %d bytes: %w", size, err)
	}

	idx := len(p.chunks)
	for i, c := range p.chunks {
		if c == nil {
			idx = i
			break
		}
	}
	// The last arena of the chunk must still have a representable id.
	if _, err := conv.IntToUint32((idx+1)*p.arenasPerChunk - 1); err != nil {
		_ = mapping.Close()
		p.controller.ReleaseMemory(int64(size))
		return nil, err
	}
	id := uint32(idx)

	c := &chunk{
		id:      id,
		mapping: mapping,
		free:    bitset.New(uint(p.arenasPerChunk)),
		nfree:   p.arenasPerChunk,
	}
	for i := 0; i < p.arenasPerChunk; i++ {
		c.free.Set(uint(i))
	}

	if idx == len(p.chunks) {
		p.chunks = append(p.chunks, c)
	} else {
		p.chunks[idx] = c
	}
	p.active++
	p.available += p.arenasPerChunk
	p.stats.ChunksMapped.Add(1)

	p.logger.Debug("Chunk mapped", "chunk", id, "bytes", size, "active", p.active)
	return c, nil
}

func (p *Pool) unmapLocked(c *chunk) error {
	err := c.mapping.Close()
	p.controller.ReleaseMemory(int64(p.ChunkBytes()))
	p.active--
	p.available -= c.nfree
	p.stats.ChunksUnmapped.Add(1)
	return err
}
