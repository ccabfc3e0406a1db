package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Strob0t/CodeTutor/internal/domain"
)

// RateLimiter is per-IP token bucket rate limiting middleware.
type RateLimiter struct {
	mu         sync.Mutex
	clients    map[string]*client
	limit      rate.Limit
	burst      int
	maxClients int // caps tracked IPs
	now        func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter allowing perHour requests per client
// IP with the given burst.
func NewRateLimiter(perHour float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients:    make(map[string]*client),
		limit:      rate.Limit(perHour / 3600),
		burst:      max(burst, 1),
		maxClients: 100000,
		now:        time.Now,
	}
}

// Handler returns HTTP middleware that enforces per-IP rate limiting.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retryAfter, allowed := rl.allow(realIP(r))

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.burst))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			secs := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": fmt.Sprintf("too many analysis requests; retry in %ds", secs),
				"kind":  string(domain.KindRateLimitExceeded),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allow reports whether a request from ip may proceed, the tokens left, and
// how long to wait when it may not.
func (rl *RateLimiter) allow(ip string) (remaining int, retryAfter time.Duration, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		if len(rl.clients) >= rl.maxClients {
			return 0, time.Minute, false
		}
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return 0, time.Hour, false
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return 0, delay, false
	}
	return int(c.limiter.TokensAt(now)), 0, true
}

// StartCleanup spawns a goroutine that forgets clients not seen for maxIdle.
// It stops when ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(maxIdle)
			}
		}
	}()
}

func (rl *RateLimiter) cleanup(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// realIP extracts the client IP from RemoteAddr.
// Proxy headers (X-Forwarded-For, X-Real-Ip) are NOT trusted because
// they can be spoofed to bypass rate limiting.
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
