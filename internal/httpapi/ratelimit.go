package httpapi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter is a per-client-IP token bucket with stale-entry
// eviction: a mutex-guarded map of limiters keyed by remote IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rateVal  rate.Limit
	burst    int
}

type entry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

func newIPRateLimiter(perSecond float64, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*entry),
		rateVal:  rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.limiters[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rl.rateVal, rl.burst)}
		rl.limiters[ip] = e
	}
	e.lastUse = time.Now()
	return e.limiter.Allow()
}

// startEviction removes limiters unused for longer than ttl every
// interval, until ctx is canceled, so the per-IP map does not grow
// without bound across the life of the process.
func (rl *ipRateLimiter) startEviction(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evictStale(ttl)
			}
		}
	}()
}

func (rl *ipRateLimiter) evictStale(ttl time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	for ip, e := range rl.limiters {
		if e.lastUse.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// rateLimited wraps h so that requests exceeding the limiter's rate get
// a 429 instead of reaching the handler.
func (rl *ipRateLimiter) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h(w, r)
	}
}
