package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/scrutineering/scrutineer/internal/pkg/errors"
)

// RateLimiterConfig configures per-client request limiting.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate allowed per client.
	RequestsPerSecond float64

	// Burst is the token bucket size per client.
	Burst int

	// CleanupInterval is how often idle clients are evicted.
	CleanupInterval time.Duration

	// StaleAfter is how long a client may be idle before eviction.
	// Defaults to 5 minutes.
	StaleAfter time.Duration
}

// DefaultRateLimiterConfig returns the limits used when none are configured.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		CleanupInterval:   time.Minute,
		StaleAfter:        5 * time.Minute,
	}
}

// client is one tracked caller: its token bucket and when it last called.
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a token-bucket limit per client IP. Idle clients
// are evicted by a background loop so the map does not grow without bound.
type RateLimiter struct {
	mu      sync.RWMutex
	clients map[string]*client

	rate       rate.Limit
	burst      int
	cleanup    time.Duration
	staleAfter time.Duration

	stop      chan struct{}
	closeOnce sync.Once
}

// NewRateLimiter creates a limiter and starts its eviction loop.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	rl := &RateLimiter{
		clients:    make(map[string]*client),
		rate:       rate.Limit(cfg.RequestsPerSecond),
		burst:      cfg.Burst,
		cleanup:    cfg.CleanupInterval,
		staleAfter: cfg.StaleAfter,
		stop:       make(chan struct{}),
	}

	go rl.evictLoop()

	return rl
}

// Allow reports whether a request from the client may proceed, consuming
// one token if so.
func (rl *RateLimiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	c, ok := rl.clients[clientIP]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[clientIP] = c
	}
	c.lastSeen = time.Now()
	rl.mu.Unlock()

	return c.limiter.Allow()
}

// evictLoop drops clients idle longer than staleAfter, until Close.
func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.staleAfter)
			rl.mu.Lock()
			for ip, c := range rl.clients {
				if c.lastSeen.Before(cutoff) {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		case <-rl.stop:
			return
		}
	}
}

// Close stops the eviction loop. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.stop)
	})
}

// tracked returns the number of clients currently held.
func (rl *RateLimiter) tracked() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(getClientIP(r)) {
			w.Header().Set("Retry-After", "1")
			apperrors.WriteErrorWithStatus(w, http.StatusTooManyRequests,
				apperrors.RateLimitedError(1))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP resolves the caller's address, preferring proxy headers
// (first X-Forwarded-For hop, then X-Real-IP) over RemoteAddr.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
