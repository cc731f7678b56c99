// Package knowledge provides search access to the FaultMaven knowledge
// base: a read-only HTTP service holding runbooks, past incident notes,
// and vendor documentation. Results are hints for prompt composition,
// never authoritative facts.
package knowledge

import (
	"sync"
	"time"
)

// cacheEntry holds cached hits with a timestamp for TTL expiration.
type cacheEntry struct {
	hits      []Hit
	fetchedAt time.Time
}

// Cache is a thread-safe in-memory search cache with TTL expiration.
// Expired entries are cleaned up lazily on Get; no background goroutine.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// Get returns cached hits if present and not expired.
func (c *Cache) Get(key string) ([]Hit, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		// Expired. Re-check under write lock: a concurrent Set may have
		// replaced the entry with a fresh one between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && time.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.hits, true
}

// Set stores hits with the current timestamp.
func (c *Cache) Set(key string, hits []Hit) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		hits:      hits,
		fetchedAt: time.Now(),
	}
	c.mu.Unlock()
}
