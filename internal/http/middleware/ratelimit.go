package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 3 * time.Minute
	limiterSweepInterval = time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiters holds one token bucket per client address.
type clientLimiters struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*bucket
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

func (c *clientLimiters) allow(client string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.buckets[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (c *clientLimiters) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for client, b := range c.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(c.buckets, client)
		}
	}
}

// RateLimit applies a token bucket per client IP. Idle clients are
// forgotten until ctx is done.
func RateLimit(ctx context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}
	limiters := newClientLimiters(rps, burst)

	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				limiters.sweep(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(clientIP(r.RemoteAddr), time.Now()) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"code":"rate_limited","message":"too many requests"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
