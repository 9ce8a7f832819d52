package rpc

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter applies a per-client token bucket to mutating routes so a
// single caller cannot flood fund/claim submissions.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	lastSeen map[string]time.Time
}

// NewClientLimiter allows roughly rps requests per second per client with
// the given burst.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &ClientLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		lastSeen: make(map[string]time.Time),
	}
}

func (l *ClientLimiter) limiterFor(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[client] = limiter
	}
	l.lastSeen[client] = time.Now()
	// Opportunistic cleanup of idle buckets.
	if len(l.limiters) > 4096 {
		cutoff := time.Now().Add(-10 * time.Minute)
		for key, seen := range l.lastSeen {
			if seen.Before(cutoff) {
				delete(l.limiters, key)
				delete(l.lastSeen, key)
			}
		}
	}
	return limiter
}

// Middleware rejects over-limit requests with 429.
func (l *ClientLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !l.limiterFor(host).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
