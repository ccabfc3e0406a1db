// Package git bounds how many git processes the service runs at once.
package git

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool is a shared slot pool for git CLI invocations. Every clone goes
// through it so that a burst of submitted tasks cannot spawn an unbounded
// number of git processes.
type Pool struct {
	sem     *semaphore.Weighted
	limit   int
	running atomic.Int32
	waiting atomic.Int32
}

// NewPool creates a Pool allowing at most limit concurrent operations.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit)), limit: limit}
}

// Run waits for a slot, then runs fn. It returns ctx.Err() if ctx ends while
// waiting. A nil Pool runs fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return err
	}
	p.running.Add(1)
	defer func() {
		p.running.Add(-1)
		p.sem.Release(1)
	}()
	return fn()
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Limit   int `json:"limit"`
	Running int `json:"running"`
	Waiting int `json:"waiting"`
}

// Stats reports current usage.
func (p *Pool) Stats() Stats {
	if p == nil {
		return Stats{}
	}
	return Stats{Limit: p.limit, Running: int(p.running.Load()), Waiting: int(p.waiting.Load())}
}
