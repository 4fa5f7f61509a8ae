// Package statscache provides a process-local, TTL-bounded cache for
// read-heavy analytics queries. It never talks to an external cache;
// invalidation is by expiry or process restart only.
package statscache

import (
	"fmt"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

type entry struct {
	value     any
	insertedAt time.Time
}

// Cache memoizes the result of a loader function keyed by an opaque string,
// refreshing an entry once it is older than ttl.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]entry
}

// New builds a cache with the given TTL. A zero or negative ttl uses the
// 30s default from the spec.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{ttl: ttl, m: make(map[string]entry)}
}

// Key builds a cache key from a metric name, tenant id, and arbitrary
// parameters, so callers never have to hand-format their own keys.
func Key(metric, tenantID string, params ...any) string {
	return fmt.Sprintf("%s|%s|%v", metric, tenantID, params)
}

// GetOrLoad returns the cached value for key if fresh, otherwise calls load,
// stores the result, and returns it. load errors are not cached.
func (c *Cache) GetOrLoad(key string, load func() (any, error)) (any, error) {
	c.mu.Lock()
	if e, ok := c.m[key]; ok && time.Since(e.insertedAt) < c.ttl {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	value, err := load()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.m[key] = entry{value: value, insertedAt: time.Now()}
	c.mu.Unlock()
	return value, nil
}
