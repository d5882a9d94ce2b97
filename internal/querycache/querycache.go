// Package querycache implements the Query Cache (C6): 1-second TTL
// memoization of summary computations, with concurrent-miss
// coalescing. Grounded on the sync.Map TTL-cache pattern in
// services/gateway/middleware/auth.go's AuthMiddleware (cachedAuth{
// expiresAt}, cache-then-recheck), generalized with
// golang.org/x/sync/singleflight so concurrent misses on one key share
// a single computation instead of racing the same work.
package querycache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value      any
	insertedAt time.Time
}

// Cache memoizes Compute results per key for a fixed TTL.
type Cache struct {
	ttl    time.Duration
	mu     sync.RWMutex
	values map[string]entry
	group  singleflight.Group
}

// New builds a Cache with the given TTL (spec.md default 1s).
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, values: make(map[string]entry)}
}

// Get returns the cached value for key if it's younger than the TTL,
// otherwise computes it via fn. Concurrent misses on the same key
// coalesce: only the first caller invokes fn, the rest await its
// result.
func (c *Cache) Get(key string, fn func() (any, error)) (any, error) {
	c.mu.RLock()
	e, ok := c.values[key]
	c.mu.RUnlock()
	if ok && time.Since(e.insertedAt) < c.ttl {
		return e.value, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check: another goroutine may have refreshed it while we
		// waited to enter Do.
		c.mu.RLock()
		e, ok := c.values[key]
		c.mu.RUnlock()
		if ok && time.Since(e.insertedAt) < c.ttl {
			return e.value, nil
		}

		result, err := fn()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.values[key] = entry{value: result, insertedAt: time.Now()}
		c.mu.Unlock()
		return result, nil
	})
	return v, err
}

// Invalidate drops a single key, forcing the next Get to recompute.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
}
