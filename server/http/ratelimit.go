package http

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit configures per-client token buckets.
type RateLimit struct {
	RPS   float64
	Burst int
}

type clientLimiter struct {
	cfg RateLimit

	mu       sync.Mutex
	limiters map[string]*limiterEntry
	lastGC   time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 10 * time.Minute

func newClientLimiter(cfg RateLimit) *clientLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &clientLimiter{cfg: cfg, limiters: make(map[string]*limiterEntry), lastGC: time.Now()}
}

func (c *clientLimiter) allow(client string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastGC) > limiterIdle {
		for k, e := range c.limiters {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(c.limiters, k)
			}
		}
		c.lastGC = now
	}

	e, ok := c.limiters[client]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(c.cfg.RPS), c.cfg.Burst)}
		c.limiters[client] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

func (c *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.allow(clientAddr(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
