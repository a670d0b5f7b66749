package mem

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// CacheConfig holds the parameters of the optional data cache in front of
// the memory port.
type CacheConfig struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes (cache line size).
	BlockSize int
	// HitLatency in cycles.
	HitLatency int
	// MissLatency in cycles, including the line fetch.
	MissLatency int
}

// DefaultCacheConfig returns a small direct-path data cache configuration
// suited to the embedded profile of the core.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Size:          4 * 1024,
		Associativity: 2,
		BlockSize:     16,
		HitLatency:    1,
		MissLatency:   8,
	}
}

// CacheStatistics holds cache performance counters.
type CacheStatistics struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// Cached wraps a memory Model with a write-allocate, write-back cache. Tag
// and replacement state live in an Akita cache directory with LRU victim
// selection; only the response latency varies, responses still complete
// strictly in order.
type Cached struct {
	inner  *Model
	config CacheConfig

	directory *akitacache.DirectoryImpl
	dataStore [][]byte

	cycle     uint64
	lastReady uint64
	inFlight  []timedResponse
	current   Response

	stats CacheStatistics
}

type timedResponse struct {
	ready uint64
	resp  Response
}

// NewCached wraps inner with a cache.
func NewCached(config CacheConfig, inner *Model) *Cached {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Cached{
		inner:  inner,
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
	}
}

// WidthBytes returns the port width in bytes.
func (c *Cached) WidthBytes() int { return c.inner.WidthBytes() }

// Stats returns the cache counters.
func (c *Cached) Stats() CacheStatistics { return c.stats }

func (c *Cached) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

// Submit accepts a request, resolves it against the cache, and schedules its
// response. The port always grants.
func (c *Cached) Submit(req Request) bool {
	wb := c.inner.WidthBytes()
	addr := int(req.Addr) &^ (wb - 1)
	if addr+wb > c.inner.Size() {
		c.schedule(Response{Valid: true, Err: true}, c.config.MissLatency)
		return true
	}

	blockAddr := uint64(addr) / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
	block := c.directory.Lookup(0, blockAddr)
	latency := c.config.HitLatency

	if block == nil || !block.IsValid {
		c.stats.Misses++
		latency = c.config.MissLatency
		block = c.fetch(blockAddr)
	} else {
		c.stats.Hits++
	}
	c.directory.Visit(block)

	line := c.dataStore[c.blockIndex(block)]
	offset := addr % c.config.BlockSize

	var data uint64
	for i := 0; i < wb; i++ {
		data |= uint64(line[offset+i]) << (8 * uint(i))
	}
	if req.We {
		for i := 0; i < wb; i++ {
			if req.ByteEn&(1<<uint(i)) != 0 {
				line[offset+i] = byte(req.WData >> (8 * uint(i)))
			}
		}
		block.IsDirty = true
	}

	c.schedule(Response{Valid: true, Data: data}, latency)
	return true
}

// fetch brings a line into the cache, evicting and writing back as needed.
func (c *Cached) fetch(blockAddr uint64) *akitacache.Block {
	victim := c.directory.FindVictim(blockAddr)
	line := c.dataStore[c.blockIndex(victim)]

	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty {
			c.stats.Writebacks++
			c.inner.WriteBytes(uint32(victim.Tag), line)
		}
	}

	copy(line, c.inner.ReadBytes(uint32(blockAddr), c.config.BlockSize))
	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false
	return victim
}

// schedule queues a response, preserving in-order completion.
func (c *Cached) schedule(resp Response, latency int) {
	ready := c.cycle + uint64(latency)
	if ready <= c.lastReady {
		ready = c.lastReady + 1
	}
	c.lastReady = ready
	c.inFlight = append(c.inFlight, timedResponse{ready: ready, resp: resp})
}

// Response returns this cycle's response, if one matured.
func (c *Cached) Response() Response { return c.current }

// Tick advances one cycle and matures at most one response.
func (c *Cached) Tick() {
	c.cycle++
	c.current = Response{}
	if len(c.inFlight) > 0 && c.inFlight[0].ready <= c.cycle {
		c.current = c.inFlight[0].resp
		c.inFlight = c.inFlight[1:]
	}
}

// Flush writes all dirty lines back to the backing memory and invalidates
// the cache. Call before inspecting memory contents directly.
func (c *Cached) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
				c.inner.WriteBytes(uint32(block.Tag), c.dataStore[c.blockIndex(block)])
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates the cache and drops in-flight responses without
// writeback.
func (c *Cached) Reset() {
	c.directory.Reset()
	c.inFlight = nil
	c.current = Response{}
	c.cycle = 0
	c.lastReady = 0
	c.stats = CacheStatistics{}
}
