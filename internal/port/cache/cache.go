// Package cache defines the port for memoizing LLM completions.
package cache

import "context"

// Cache stores completion text by key. Implementations may drop entries at
// any time; a miss is never an error.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// Nop is a Cache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) (string, bool) { return "", false }
func (Nop) Set(context.Context, string, string)        {}
