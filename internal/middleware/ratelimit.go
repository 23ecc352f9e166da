package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per key with a burst of the same size.
// A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Inf,
		idle:    10 * time.Minute,
		now:     time.Now,
	}
	if perMinute > 0 {
		rl.limit = rate.Every(time.Minute / time.Duration(perMinute))
		rl.burst = perMinute
	}
	return rl
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	if r.limit == rate.Inf {
		return true
	}
	now := r.now()

	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now
	r.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Forget drops the bucket for key.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buckets, key)
}

// Len returns the number of tracked keys.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// evictIdle removes buckets unused for longer than the idle window.
func (r *RateLimiter) evictIdle() int {
	cutoff := r.now().Add(-r.idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
			n++
		}
	}
	return n
}

// StartEviction periodically removes idle buckets until ctx is done.
func (r *RateLimiter) StartEviction(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.idle)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.evictIdle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimit rejects requests over the limit with 429. key extracts the bucket
// key from the request; an empty key is not limited.
func RateLimit(rl *RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k != "" && !rl.Allow(k) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(60))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
