package cache

import (
	"sync"
	"time"

	"finboard/internal/core"
)

// RollupCache keeps recently computed monthly aggregates keyed by month key.
//
// Every invalidation bumps a generation counter. Writers read Generation
// before loading records and pass it back to StoreAt, which refuses the
// write when an invalidation happened in between.
type RollupCache struct {
	mu     sync.Mutex
	gen    uint64
	months *LRUCache[core.MonthlyAggregate]
}

var _ Cache[core.MonthlyAggregate] = (*LRUCache[core.MonthlyAggregate])(nil)

func NewRollupCache(maxMonths int, ttl time.Duration) *RollupCache {
	return &RollupCache{months: NewLRUCache[core.MonthlyAggregate](maxMonths, ttl)}
}

// Month returns the cached aggregate for key.
func (c *RollupCache) Month(key string) (core.MonthlyAggregate, bool) {
	return c.months.Get(key)
}

// Generation returns the current invalidation generation.
func (c *RollupCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// StoreAt caches each aggregate under its own month key when no invalidation
// happened since gen. It reports whether the aggregates were stored.
func (c *RollupCache) StoreAt(gen uint64, aggs ...core.MonthlyAggregate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	for _, a := range aggs {
		c.months.Set(a.MonthKey, a)
	}
	return true
}

// ReplaceAt swaps the whole cache content for aggs under the same rule as StoreAt.
func (c *RollupCache) ReplaceAt(gen uint64, aggs ...core.MonthlyAggregate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.months.Purge()
	for _, a := range aggs {
		c.months.Set(a.MonthKey, a)
	}
	return true
}

// Invalidate drops the given months, or everything when keys is empty.
func (c *RollupCache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if len(keys) == 0 {
		c.months.Purge()
		return
	}
	for _, k := range keys {
		c.months.Delete(k)
	}
}

func (c *RollupCache) CleanExpired() int {
	return c.months.CleanExpired()
}

func (c *RollupCache) Size() int {
	return c.months.Size()
}
