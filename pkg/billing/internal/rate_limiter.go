package internal

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter provides fixed-window in-memory rate limiting per client IP for
// webhook endpoints. The payment provider retries rejected deliveries with
// backoff, so the limit only needs to stop floods.
type RateLimiter struct {
	mu            sync.Mutex
	requests      map[string]*bucket
	limit         int           // max requests per window
	window        time.Duration // time window
	requestCount  int           // counter for deterministic cleanup
	cleanupEvery  int           // cleanup every N requests (default: 100)
	cleanupAtSize int           // cleanup when map size exceeds this (default: 200)
	now           func() time.Time

	// OnLimited is called for every rejected request
	OnLimited func(r *http.Request)
}

type bucket struct {
	count   int
	resetAt time.Time
}

// decision is the outcome of one allow call.
type decision struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

// NewRateLimiter creates a new rate limiter with the specified limit and window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests:      make(map[string]*bucket),
		limit:         limit,
		window:        window,
		cleanupEvery:  100,
		cleanupAtSize: 200,
		now:           time.Now,
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	return rl.decide(ip).allowed
}

func (rl *RateLimiter) decide(ip string) decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	rl.requestCount++
	if rl.requestCount%rl.cleanupEvery == 0 || len(rl.requests) > rl.cleanupAtSize {
		rl.cleanupExpired(now)
		if rl.requestCount >= rl.cleanupEvery*10 {
			rl.requestCount = 0
		}
	}

	b, exists := rl.requests[ip]
	if !exists || now.After(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(rl.window)}
		rl.requests[ip] = b
		return decision{allowed: true, remaining: rl.limit - 1, resetIn: rl.window}
	}

	resetIn := b.resetAt.Sub(now)
	if b.count >= rl.limit {
		return decision{allowed: false, remaining: 0, resetIn: resetIn}
	}

	b.count++
	return decision{allowed: true, remaining: rl.limit - b.count, resetIn: resetIn}
}

// cleanupExpired removes expired entries from the requests map to prevent memory leaks.
func (rl *RateLimiter) cleanupExpired(now time.Time) {
	for ip, bucket := range rl.requests {
		if now.After(bucket.resetAt) {
			delete(rl.requests, ip)
		}
	}
}

// Cleanup removes all expired entries from the rate limiter.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanupExpired(rl.now())
}

// Middleware wraps an HTTP handler with rate limiting. Every response carries
// RateLimit-* headers; rejected requests get a 429 with Retry-After and a JSON
// body naming the wait in seconds.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := rl.decide(GetClientIP(r))
		resetSeconds := int(math.Ceil(d.resetIn.Seconds()))

		h := w.Header()
		h.Set("RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("RateLimit-Remaining", strconv.Itoa(d.remaining))
		h.Set("RateLimit-Reset", strconv.Itoa(resetSeconds))

		if !d.allowed {
			if rl.OnLimited != nil {
				rl.OnLimited(r)
			}
			h.Set("Retry-After", strconv.Itoa(resetSeconds))
			_ = WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"message":    fmt.Sprintf("Too many webhook requests, please try again after %s", rl.window),
				"retryAfter": resetSeconds,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClientIP extracts the client IP address from the request.
// Checks X-Forwarded-For header first (set by proxies/load balancers),
// then falls back to RemoteAddr.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.Split(xff, ",")[0]; ip != "" {
			return strings.TrimSpace(ip)
		}
	}
	return r.RemoteAddr
}
