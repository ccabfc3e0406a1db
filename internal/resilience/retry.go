package resilience

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"
)

// Policy describes a bounded exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Retry calls fn until it succeeds, returns a non-transient error, the
// attempts are exhausted, or ctx is done. The last error is returned wrapped
// with the attempt count.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				return ctxErr
			}
			return fmt.Errorf("%w (last error: %v)", ctxErr, err)
		}

		made++
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			break
		}

		wait := p.backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-timer.C:
		}
	}
	if made == 1 {
		return err
	}
	return fmt.Errorf("after %d attempts: %w", made, err)
}

// backoff returns BaseDelay*2^(attempt-1) capped at MaxDelay, with up to
// 20% jitter subtracted.
func (p Policy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	return d - time.Duration(rand.Int64N(int64(d)/5+1))
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Transient marks err as retryable regardless of its text.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err}
}

// Permanent marks err as not retryable regardless of its text.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

var fatalMarkers = []string{
	"invalid api key", "invalid x-api-key", "incorrect api key", "authentication",
	"unauthorized", "permission denied", "forbidden", "401", "403",
	"insufficient_quota", "quota exceeded", "credit balance", "billing",
}

var transientMarkers = []string{
	"rate limit", "rate_limit", "too many requests", "429",
	"timeout", "timed out", "deadline exceeded",
	"500", "502", "503", "504", "529", "overloaded", "internal server error",
	"bad gateway", "service unavailable", "gateway timeout",
	"connection reset", "connection refused", "broken pipe", "unexpected eof",
	"temporarily unavailable", "try again",
}

// IsTransient reports whether err is worth retrying: rate limits, timeouts
// and 5xx-style provider failures. Authentication and billing failures,
// an open circuit and caller cancellation are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var p permanentError
	if errors.As(err, &p) {
		return false
	}
	var t transientError
	if errors.As(err, &t) {
		return true
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range fatalMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
