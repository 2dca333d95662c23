package apiclient

import (
	"encoding/json"
	"sync"
	"time"
)

// cacheEntry is a cached upstream payload with its expiry.
type cacheEntry struct {
	value     json.RawMessage
	expiresAt time.Time
}

// ttlCache is a concurrency-safe TTL map owned by a single Client.
type ttlCache struct {
	mu     sync.RWMutex
	items  map[string]cacheEntry
	ttl    time.Duration
	now    func() time.Time
	hits   int
	misses int
}

func newTTLCache(ttl time.Duration, now func() time.Time) *ttlCache {
	if now == nil {
		now = time.Now
	}
	return &ttlCache{
		items: make(map[string]cacheEntry),
		ttl:   ttl,
		now:   now,
	}
}

// get returns a live entry and records the hit or miss. Expired entries are
// evicted on access.
func (c *ttlCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lookupLocked(key)
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return v, true
}

// lookup is get without touching the statistics.
func (c *ttlCache) lookup(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookupLocked(key)
}

func (c *ttlCache) lookupLocked(key string) (json.RawMessage, bool) {
	e, ok := c.items[key]
	if ok && !c.now().Before(e.expiresAt) {
		delete(c.items, key)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (c *ttlCache) set(key string, value json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *ttlCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]cacheEntry)
}

func (c *ttlCache) stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
