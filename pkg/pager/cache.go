package pager

import (
	"tuple-db/internal/common"
)

// SlotCache holds every resident page, indexed by page number.
// Pages are never evicted: once a slot is filled it stays filled.
type SlotCache struct {
	slots  [common.MaxPages]*Page
	size   int
	hits   uint64
	misses uint64
}

// NewSlotCache creates an empty slot cache
func NewSlotCache() *SlotCache {
	return &SlotCache{}
}

// Get retrieves a page from the cache
// Returns nil if the slot is absent or out of range
func (c *SlotCache) Get(pageNum uint32) *Page {
	if pageNum >= common.MaxPages {
		return nil
	}
	if page := c.slots[pageNum]; page != nil {
		c.hits++
		return page
	}
	c.misses++
	return nil
}

// Put fills an absent slot. It returns false if the slot is out of range or
// already resident; a resident page is never replaced.
func (c *SlotCache) Put(pageNum uint32, page *Page) bool {
	if pageNum >= common.MaxPages || c.Contains(pageNum) {
		return false
	}
	c.slots[pageNum] = page
	c.size++
	return true
}

// Contains checks if a page is resident
func (c *SlotCache) Contains(pageNum uint32) bool {
	return pageNum < common.MaxPages && c.slots[pageNum] != nil
}

// Size returns the current number of resident pages
func (c *SlotCache) Size() int {
	return c.size
}

// Capacity returns the number of slots
func (c *SlotCache) Capacity() int {
	return common.MaxPages
}

// Highest returns the largest resident page number, or -1 when empty
func (c *SlotCache) Highest() int {
	for i := len(c.slots) - 1; i >= 0; i-- {
		if c.slots[i] != nil {
			return i
		}
	}
	return -1
}

// Stats returns cache hit/miss statistics
func (c *SlotCache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// HitRate returns the cache hit rate as a percentage
func (c *SlotCache) HitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}
