// Package natskv implements the cache port on a NATS JetStream KV bucket so
// completions are shared between instances.
package natskv

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a JetStream KeyValue bucket. Entry TTL is the bucket's TTL.
type Cache struct {
	kv jetstream.KeyValue
}

// New creates a KV-backed completion cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv}
}

// Get retrieves a completion. Broker errors count as misses.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, jetstream.ErrKeyNotFound) {
			slog.Warn("completion cache get failed", "key", key, "error", err)
		}
		return "", false
	}
	return string(entry.Value()), true
}

// Set stores a completion. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key, value string) {
	if _, err := c.kv.Put(ctx, key, []byte(value)); err != nil {
		slog.Warn("completion cache put failed", "key", key, "error", err)
	}
}
