// -------------------------------------------------------------------------------
// Rate Limiter - Per-Identity Token Bucket Throttling
//
// Author: Alex Freidah
//
// Per-identity token bucket rate limiter with automatic cleanup of stale
// entries. Requests are keyed by the Basic-auth username when present and by
// client IP otherwise, so each caller identity gets its own bucket and
// anonymous traffic is throttled per source address. Requests exceeding the
// configured rate receive 429.
// -------------------------------------------------------------------------------

package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/afreidah/kafka-rest-proxy/internal/config"
	"github.com/afreidah/kafka-rest-proxy/internal/telemetry"
)

// RateLimiter provides per-identity token-bucket rate limiting.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerLimiter
	rate     rate.Limit
	burst    int
	stop     chan struct{}
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*callerLimiter),
		rate:     rate.Limit(cfg.RequestsPerSec),
		burst:    cfg.Burst,
		stop:     make(chan struct{}),
	}

	// Background cleanup of stale entries every 3 minutes
	go func() {
		ticker := time.NewTicker(3 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup(10 * time.Minute)
			case <-rl.stop:
				return
			}
		}
	}()

	return rl
}

// Close stops the background cleanup goroutine.
func (rl *RateLimiter) Close() {
	close(rl.stop)
}

// Allow checks whether a request from the given caller key is allowed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	v, ok := rl.limiters[key]
	if !ok {
		v = &callerLimiter{
			limiter: rate.NewLimiter(rl.rate, rl.burst),
		}
		rl.limiters[key] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()

	return v.limiter.Allow()
}

// cleanup removes entries not seen within the given duration.
func (rl *RateLimiter) cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for key, v := range rl.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
}

// Middleware wraps an http.Handler with per-identity rate limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(callerKey(r)) {
			telemetry.RateLimitRejectionsTotal.Inc()
			writeProxyError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerKey derives the bucket key for a request: the Basic-auth username
// when present, the client IP otherwise. The username is read without
// verification here; bad credentials still spend the caller's own budget
// rather than the shared anonymous one.
func callerKey(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok && user != "" {
		return "user:" + user
	}
	return "addr:" + stripPort(r.RemoteAddr)
}

// stripPort removes the port from a host:port address.
func stripPort(addr string) string {
	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ip
}
