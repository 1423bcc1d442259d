package retrieval

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// CacheKey fingerprints a retrieval request so identical requests within
// the TTL are served from cache (spec §4.3 step 1).
func CacheKey(taskFingerprint string, agentIDs []string, pattern string) string {
	h := sha256.New()
	h.Write([]byte(taskFingerprint))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(agentIDs, ",")))
	h.Write([]byte("|"))
	h.Write([]byte(pattern))
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	key       string
	value     *Context
	expiresAt time.Time
}

// LRUCache is a capacity-bounded, TTL-checked cache of assembled Context
// values, evicting the least-recently-accessed entry once full (spec
// §4.3 step 5).
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List // front = most recently used
}

// NewLRUCache builds a cache with the given capacity and TTL.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached Context for key if present and still fresh.
func (c *LRUCache) Get(key string) (*Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.value, true
}

// Put stores a Context under key, evicting the LRU entry if at capacity.
func (c *LRUCache) Put(key string, value *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}

	entry := &cacheEntry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	el := c.order.PushFront(entry)
	c.items[key] = el
}

// Len reports the current number of cached entries.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
