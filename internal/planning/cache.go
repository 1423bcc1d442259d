package planning

import (
	"fmt"
	"sync"
	"time"
)

// cacheEntry holds a cached plan set plus its expiry.
type cacheEntry struct {
	plans     []*Plan
	expiresAt time.Time
}

// Cache memoizes generated plan sets by task-id + complexity, bypassed on
// force-regenerate (spec §4.9: "keyed by task-id + complexity; TTL 5
// minutes; bypass on force-regenerate").
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]cacheEntry
}

// NewCache builds an empty plan cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, m: make(map[string]cacheEntry)}
}

// Key derives the cache key for a task-id + complexity score, bucketed to
// the nearest whole point so near-identical re-scoring doesn't miss.
func Key(taskID string, complexityScore float64) string {
	return fmt.Sprintf("%s:%d", taskID, int(complexityScore+0.5))
}

// Get returns a cached plan set if present and unexpired.
func (c *Cache) Get(key string) ([]*Plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.m, key)
		return nil, false
	}
	return entry.plans, true
}

// Put stores a plan set under key with the cache's TTL.
func (c *Cache) Put(key string, plans []*Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = cacheEntry{plans: plans, expiresAt: time.Now().Add(c.ttl)}
}

// Invalidate drops a cached entry, used when force-regenerate bypasses
// the cache entirely.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}
