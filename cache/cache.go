package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// entry holds a cached value with its creation timestamp.
type entry[V any] struct {
	value     V
	createdAt time.Time
}

// Cache is a small in-memory TTL cache. It is safe for concurrent use.
// Expired entries are dropped lazily on Get and when Set needs room.
type Cache[V any] struct {
	mu         sync.RWMutex
	store      map[string]*entry[V]
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries values for ttl each.
// It returns nil when ttl or maxEntries is not positive; a nil *Cache
// never hits and ignores Set.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if ttl <= 0 || maxEntries <= 0 {
		return nil
	}
	return &Cache[V]{
		store:      make(map[string]*entry[V]),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Key generates a cache key from its parts.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte("|"))
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}

	if c.now().Sub(e.createdAt) > c.ttl {
		c.mu.Lock()
		if cur, ok := c.store[key]; ok && cur == e {
			delete(c.store, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. At capacity, expired entries are purged
// first, then an arbitrary entry is evicted.
func (c *Cache[V]) Set(key string, value V) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k, e := range c.store {
			if now.Sub(e.createdAt) > c.ttl {
				delete(c.store, k)
			}
		}
		// Map iteration order is random in Go.
		if len(c.store) >= c.maxEntries {
			for k := range c.store {
				delete(c.store, k)
				break
			}
		}
	}

	c.store[key] = &entry[V]{value: value, createdAt: now}
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
