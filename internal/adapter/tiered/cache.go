// Package tiered combines an in-process completion cache with a shared one.
package tiered

import (
	"context"

	"github.com/Strob0t/CodeTutor/internal/port/cache"
)

// Cache checks L1 first, then L2, backfilling L1 on an L2 hit. Set writes
// both levels.
type Cache struct {
	l1 cache.Cache
	l2 cache.Cache
}

// New creates a tiered cache over l1 (local) and l2 (shared).
func New(l1, l2 cache.Cache) *Cache {
	return &Cache{l1: l1, l2: l2}
}

// Get returns the completion for key from the nearest level holding it.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if v, ok := c.l1.Get(ctx, key); ok {
		return v, true
	}
	v, ok := c.l2.Get(ctx, key)
	if !ok {
		return "", false
	}
	c.l1.Set(ctx, key, v)
	return v, true
}

// Set writes key to both levels.
func (c *Cache) Set(ctx context.Context, key, value string) {
	c.l1.Set(ctx, key, value)
	c.l2.Set(ctx, key, value)
}
