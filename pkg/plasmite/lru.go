package plasmite

import "container/list"

// SeqCache is a bounded map from sequence number to the most recently
// observed ring-relative offset for that sequence (§4.9 "Seq cache
// (LRU)"). It is a read-side accelerator only: a stale or evicted entry
// just means the caller falls back to the hint table / tail walk, never a
// correctness issue.
//
// SeqCache is not safe for concurrent use; callers that share one across
// goroutines must synchronize externally.
type SeqCache struct {
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element
}

type seqCacheEntry struct {
	seq    uint64
	offset uint64
}

// NewSeqCache returns a cache holding at most capacity entries. capacity
// must be positive.
func NewSeqCache(capacity int) *SeqCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &SeqCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[uint64]*list.Element, capacity),
	}
}

// Get returns the cached offset for seq, if present, and marks it
// most-recently-used.
func (c *SeqCache) Get(seq uint64) (offset uint64, found bool) {
	el, ok := c.items[seq]
	if !ok {
		return 0, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*seqCacheEntry).offset, true
}

// Put records (or updates) the offset for seq, evicting the least recently
// used entry if the cache is at capacity.
func (c *SeqCache) Put(seq, offset uint64) {
	if el, ok := c.items[seq]; ok {
		el.Value.(*seqCacheEntry).offset = offset
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&seqCacheEntry{seq: seq, offset: offset})
	c.items[seq] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*seqCacheEntry).seq)
	}
}

// Len returns the number of entries currently cached.
func (c *SeqCache) Len() int {
	return c.ll.Len()
}
