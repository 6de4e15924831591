package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock so no test sleeps on real TTLs.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCache(ttl time.Duration) (*Cache[string], *fakeClock) {
	clock := newFakeClock()
	return New[string](ttl, func(o *Options) { o.Now = clock.Now }), clock
}

func TestCache_GetWithinTTL(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Put("k", "v")

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	// Right at the TTL boundary the entry is still valid.
	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_ExpiredEntryMissesOnceThenSwept(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Put("k", "v")
	clock.Advance(2 * time.Minute)

	// First read after expiry is a clean miss and evicts the entry, so the
	// following sweep finds nothing left to remove.
	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	assert.Zero(t, c.SweepExpired())
}

func TestCache_SweepExpiredIdempotent(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Put("a", "1")
	c.Put("b", "2")
	clock.Advance(time.Hour)
	c.Put("c", "3")

	assert.Equal(t, 2, c.SweepExpired())
	assert.Equal(t, 0, c.SweepExpired())

	_, ok := c.Get("c")
	assert.True(t, ok)
}

func TestCache_PutResetsTTL(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Put("k", "old")
	clock.Advance(50 * time.Second)
	c.Put("k", "new")
	clock.Advance(30 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestCache_Metrics(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	c.Put("k", "v")
	c.Get("k")
	c.Get("absent")
	clock.Advance(2 * time.Minute)
	c.Get("k") // expired: counted as miss

	hits, misses := c.Metrics()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
}

func TestCache_DeletePrefix(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Put("def-1/t1", "a")
	c.Put("def-1/t2", "b")
	c.Put("def-2/t1", "c")

	assert.Equal(t, 2, c.DeletePrefix("def-1/"))
	_, ok := c.Get("def-2/t1")
	assert.True(t, ok)
}

func TestCache_ConcurrentReadsDuringSweep(t *testing.T) {
	c, clock := newTestCache(time.Minute)
	for _, k := range []string{"a", "b", "c", "d"} {
		c.Put(k, k)
	}
	clock.Advance(2 * time.Minute)
	c.Put("fresh", "v")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				// Readers must observe either a valid value or a clean miss.
				if v, ok := c.Get("fresh"); ok {
					assert.Equal(t, "v", v)
				}
				c.Get("a")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.SweepExpired()
		c.SweepExpired()
	}()
	wg.Wait()

	_, ok := c.Get("fresh")
	assert.True(t, ok)
}
