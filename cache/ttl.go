package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// entry pairs a cached value with its insertion timestamp. Entries are
// replaced wholesale on Put, never mutated in place.
type entry[T any] struct {
	value      T
	insertedAt time.Time
}

// Options configures a Cache instance.
type Options struct {
	// Now overrides the clock, mainly for tests. Defaults to time.Now.
	Now func() time.Time
}

// Cache is a TTL-expiring key/value cache safe for concurrent use. An entry
// is never returned once its TTL has elapsed: expired entries are treated as
// absent and removed lazily on read or in bulk by SweepExpired.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration
	now     func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New constructs an empty cache whose entries expire ttl after insertion.
func New[T any](ttl time.Duration, optFns ...func(o *Options)) *Cache[T] {
	opts := Options{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Cache[T]{entries: make(map[string]entry[T]), ttl: ttl, now: opts.Now}
}

// Get returns the value for key if present and not expired. An expired entry
// counts as a miss and is evicted immediately.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		var zero T
		return zero, false
	}
	if now.Sub(e.insertedAt) > c.ttl {
		c.evictIfExpired(key)
		c.misses.Add(1)
		var zero T
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Put inserts or replaces the value for key, resetting its TTL window.
func (c *Cache[T]) Put(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, insertedAt: c.now()}
}

// Delete removes key regardless of expiry state.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DeletePrefix removes every key with the given prefix and returns how many
// entries were removed.
func (c *Cache[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k := range c.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// SweepExpired removes all expired entries and returns the count removed.
// It is idempotent and safe to call concurrently with reads: a read racing
// the sweep sees either the old valid value or a clean miss.
func (c *Cache[T]) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if now.Sub(e.insertedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the current number of entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Metrics returns the cumulative hit and miss counters.
func (c *Cache[T]) Metrics() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// evictIfExpired re-checks expiry under the write lock before deleting, so a
// concurrent Put is never clobbered.
func (c *Cache[T]) evictIfExpired(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && c.now().Sub(e.insertedAt) > c.ttl {
		delete(c.entries, key)
	}
}
