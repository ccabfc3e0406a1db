// Package ristretto implements the cache port with dgraph-io/ristretto as an
// in-process completion cache.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache keeps completion text in memory, bounded by total byte cost.
type Cache struct {
	c   *ristretto.Cache[string, string]
	ttl time.Duration
}

// New creates a ristretto-backed cache holding at most maxCostBytes of
// completion text. Entries expire after ttl; zero keeps them until evicted.
func New(maxCostBytes int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: max(maxCostBytes/100, 1000), // ~10x expected items at ~1KB each
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c, ttl: ttl}, nil
}

// Get retrieves a completion.
func (c *Cache) Get(_ context.Context, key string) (string, bool) {
	return c.c.Get(key)
}

// Set stores a completion. Writes are buffered; Wait flushes them.
func (c *Cache) Set(_ context.Context, key, value string) {
	c.c.SetWithTTL(key, value, int64(len(value)), c.ttl)
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() { c.c.Wait() }

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
