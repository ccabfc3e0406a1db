// Package resilience provides circuit breaking and retry for calls to
// LLM providers and other remote services.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker opens after maxFailures consecutive failures and rejects calls for
// cooldown. After the cooldown a single trial call is let through; its
// outcome closes or re-opens the circuit.
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	probing     bool
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	now         func() time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// Execute runs fn unless the circuit is open. A nil Breaker runs fn directly.
// A failure observed after ctx is done is the caller giving up, not the
// remote side failing, and is not counted.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if b == nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.acquire() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if err != nil && ctx.Err() == nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.state = StateOpen
			b.openedAt = b.now()
		}
		return err
	}
	if err == nil {
		b.failures = 0
		b.state = StateClosed
	}
	return err
}

// State reports the current position, promoting open to half-open when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}
