package engine

import (
	"sync"
	"time"
)

// Cache keeps the last successful result of each source for a short TTL.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value any
	at    time.Time
}

// NewCache returns a cache whose entries expire after ttl. A nil now uses
// time.Now. A zero ttl disables caching.
func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now, entries: make(map[string]cacheEntry)}
}

// Get returns the cached value for key if it is still fresh.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || c.ttl <= 0 || c.now().Sub(e.at) >= c.ttl {
		return nil, false
	}
	return e.value, true
}

// Put stores a successful result.
func (c *Cache) Put(key string, v any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, at: c.now()}
	c.mu.Unlock()
}

// Invalidate drops every entry.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// TTL returns the configured lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// fetch returns the cached value for key, or calls load and caches its
// result when it succeeds. hit reports whether the value came from the cache.
func fetch[T any](c *Cache, key string, load func() (T, error)) (v T, hit bool, err error) {
	if cached, ok := c.Get(key); ok {
		if t, ok := cached.(T); ok {
			return t, true, nil
		}
	}
	v, err = load()
	if err != nil {
		return v, false, err
	}
	c.Put(key, v)
	return v, false, nil
}
