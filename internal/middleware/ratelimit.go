package middleware

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// clientLimiter hands out one token-bucket limiter per client IP.
type clientLimiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rate  rate.Limit
	burst int
}

func (c *clientLimiter) allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.m[key]
	if !ok {
		lim = rate.NewLimiter(c.rate, c.burst)
		c.m[key] = lim
	}
	return lim.Allow()
}

// PerClientLimit rejects requests exceeding perMinute per client IP with
// 429. Relies on chi's RealIP middleware running first so RemoteAddr holds
// the client address.
func PerClientLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 60
	}
	cl := &clientLimiter{
		m:     make(map[string]*rate.Limiter),
		rate:  rate.Limit(float64(perMinute) / 60.0),
		burst: perMinute,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cl.allow(r.RemoteAddr) {
				http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
