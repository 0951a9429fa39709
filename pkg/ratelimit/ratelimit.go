package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// TokenBucket limits requests per key (client address). Each key gets its
// own bucket of Burst tokens refilled at Rate tokens per second.
type TokenBucket struct {
	mu      sync.Mutex
	rate    float64
	burst   float64
	buckets map[string]*bucket

	bucketTTL time.Duration
	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once

	allowed atomic.Int64
	blocked atomic.Int64
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a limiter and starts its idle-bucket sweeper
func NewTokenBucket(rate float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	tb := &TokenBucket{
		rate:      rate,
		burst:     float64(burst),
		buckets:   make(map[string]*bucket),
		bucketTTL: 5 * time.Minute,
		now:       time.Now,
		done:      make(chan struct{}),
	}
	go tb.sweep(time.Minute)
	return tb
}

// Allow consumes a token for key, reporting whether one was available
func (tb *TokenBucket) Allow(key string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.burst, lastRefill: now}
		tb.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastRefill).Seconds() * tb.rate
	if b.tokens > tb.burst {
		b.tokens = tb.burst
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		tb.allowed.Add(1)
		return true
	}
	tb.blocked.Add(1)
	return false
}

// Reset forgets the bucket for key
func (tb *TokenBucket) Reset(key string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	delete(tb.buckets, key)
}

// Stats returns allowed and blocked counts
func (tb *TokenBucket) Stats() (allowed, blocked int64) {
	return tb.allowed.Load(), tb.blocked.Load()
}

// Close stops the sweeper
func (tb *TokenBucket) Close() {
	tb.closeOnce.Do(func() { close(tb.done) })
}

func (tb *TokenBucket) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-tb.done:
			return
		case <-ticker.C:
			tb.mu.Lock()
			now := tb.now()
			for key, b := range tb.buckets {
				if now.Sub(b.lastRefill) > tb.bucketTTL {
					delete(tb.buckets, key)
				}
			}
			tb.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the limit with 429 Too Many Requests
func (tb *TokenBucket) Middleware(next http.Handler) http.Handler {
	retryAfter := "1"
	if tb.rate > 0 && tb.rate < 1 {
		retryAfter = strconv.Itoa(int(1/tb.rate + 0.5))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow(ClientKey(r)) {
			w.Header().Set("Retry-After", retryAfter)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey returns the host part of the remote address
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
