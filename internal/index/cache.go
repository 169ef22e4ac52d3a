package index

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache provides a TTL-based cache for dashboard reads, with singleflight
// coalescing so concurrent readers share a single load.
type Cache struct {
	mu       sync.RWMutex
	dash     *Dashboard
	loadedAt time.Time
	ttl      time.Duration
	group    singleflight.Group
	builder  *Builder
}

// NewCache creates a dashboard cache over the given builder with the given TTL.
func NewCache(builder *Builder, ttl time.Duration) *Cache {
	return &Cache{
		builder: builder,
		ttl:     ttl,
	}
}

// Dashboard returns the cached dashboard or loads it from disk, rebuilding
// when no dashboard document exists yet. Concurrent callers share a single
// load via singleflight.
func (c *Cache) Dashboard() (*Dashboard, error) {
	// Fast path: check if cache is valid
	c.mu.RLock()
	if c.dash != nil && time.Since(c.loadedAt) < c.ttl {
		d := c.dash
		c.mu.RUnlock()
		return d, nil
	}
	c.mu.RUnlock()

	// Slow path: load via singleflight to coalesce concurrent requests
	result, err, _ := c.group.Do("dashboard", func() (any, error) {
		// Double-check cache after acquiring singleflight slot
		c.mu.RLock()
		if c.dash != nil && time.Since(c.loadedAt) < c.ttl {
			d := c.dash
			c.mu.RUnlock()
			return d, nil
		}
		c.mu.RUnlock()

		d, err := c.builder.Dashboard()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.dash = d
		c.loadedAt = time.Now()
		c.mu.Unlock()

		return d, nil
	})

	if err != nil {
		return nil, err
	}

	return result.(*Dashboard), nil
}

// Invalidate clears the cache, forcing the next Dashboard() call to reload.
// Call after any lifecycle transition or rebuild.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.dash = nil
	c.loadedAt = time.Time{}
	c.mu.Unlock()
}
