package ristretto

import (
	"context"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c, err := New(1<<20, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Set(ctx, "k", `{"content":"hello"}`)
	c.Wait()

	got, ok := c.Get(ctx, "k")
	if !ok || got != `{"content":"hello"}` {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}

func TestCacheTTL(t *testing.T) {
	c, err := New(1<<20, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", "v")
	c.Wait()
	time.Sleep(200 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}
}
