package texcache

import (
	"container/list"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/xenosgpu/gpucore/hga"
)

// ClampLOD restricts a guest sampler's LOD range to a host texture's
// actual mip chain, in float32 throughout to match the single-
// precision guest fetch constants the range is decoded from.
func ClampLOD(s hga.Sampling, levels int) hga.Sampling {
	top := math32.Max(0, float32(levels-1))
	s.MinLOD = math32.Max(0, math32.Min(s.MinLOD, top))
	s.MaxLOD = math32.Max(s.MinLOD, math32.Min(s.MaxLOD, top))
	return s
}

// samplerCache bounds live hga.Sampler objects to MaxSamplerAllocation,
// evicting the least-recently-used entry whose last use has already
// completed on the GPU (spec §4.6, §8 testable property #5).
type samplerCache struct {
	gpu   hga.GPU
	cap   int
	byKey map[hga.Sampling]*list.Element
	lru   *list.List // list of *samplerEntry, front = most recently used

	completed uint64 // highest submission index known retired
}

type samplerEntry struct {
	key      hga.Sampling
	s        hga.Sampler
	lastUsed uint64
}

func newSamplerCache(gpu hga.GPU, capacity int) *samplerCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &samplerCache{gpu: gpu, cap: capacity, byKey: make(map[hga.Sampling]*list.Element), lru: list.New()}
}

// setCompleted records the latest retired submission index.
func (c *samplerCache) setCompleted(completed uint64) {
	if completed > c.completed {
		c.completed = completed
	}
}

// Get returns the sampler for s, stamping it with submission as its
// last-used point. If s is not cached and the cache is at capacity, it
// evicts the least-recently-used entry whose own last-used submission
// has already completed. If every entry is still potentially in
// flight, Get creates nothing and instead reports the lowest
// outstanding last-used submission: the caller must wait for that
// submission to retire and call Get again.
func (c *samplerCache) Get(s hga.Sampling, submission uint64) (sampler hga.Sampler, await uint64, err error) {
	if el, ok := c.byKey[s]; ok {
		e := el.Value.(*samplerEntry)
		e.lastUsed = submission
		c.lru.MoveToFront(el)
		return e.s, 0, nil
	}

	if c.lru.Len() >= c.cap {
		victim := c.findEvictable()
		if victim == nil {
			return nil, c.lowestOutstanding(), nil
		}
		e := victim.Value.(*samplerEntry)
		e.s.Destroy()
		delete(c.byKey, e.key)
		c.lru.Remove(victim)
	}

	sampler, err = c.gpu.NewSampler(&s)
	if err != nil {
		return nil, 0, fmt.Errorf("texcache: create sampler: %w", err)
	}
	el := c.lru.PushFront(&samplerEntry{key: s, s: sampler, lastUsed: submission})
	c.byKey[s] = el
	return sampler, 0, nil
}

// findEvictable scans from the least- to the most-recently-used entry
// and returns the first whose last use has already completed, or nil
// if none qualifies.
func (c *samplerCache) findEvictable() *list.Element {
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*samplerEntry)
		if e.lastUsed <= c.completed {
			return el
		}
	}
	return nil
}

// lowestOutstanding returns the smallest last-used submission index
// across all live entries, the point the caller should wait for.
func (c *samplerCache) lowestOutstanding() uint64 {
	lowest := ^uint64(0)
	for el := c.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*samplerEntry)
		if e.lastUsed < lowest {
			lowest = e.lastUsed
		}
	}
	if lowest == ^uint64(0) {
		return 0
	}
	return lowest
}

// Len reports the number of live samplers, for tests.
func (c *samplerCache) Len() int { return c.lru.Len() }
