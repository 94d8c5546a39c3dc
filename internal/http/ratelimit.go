package http

import (
	"sync"
	"sync/atomic"
	"time"

	"finboard/internal/cache"
)

// maxTrackedClients bounds the client table; the least recently seen
// client is forgotten first.
const maxTrackedClients = 1024

// rateLimiter allows a fixed number of requests per client IP in each window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients *cache.LRU[string, *clientInfo]
	now     func() time.Time
}

type clientInfo struct {
	windowStart time.Time
	requests    int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		limit:   limit,
		window:  window,
		clients: cache.NewLRU[string, *clientInfo](maxTrackedClients, 10*window),
		now:     time.Now,
	}
	rl.clients.SetClock(func() time.Time { return rl.now() })
	return rl
}

// allow reports whether clientIP may make another request in its window.
func (rl *rateLimiter) allow(clientIP string, metrics *securityMetrics) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, exists := rl.clients.Get(clientIP)
	if !exists || now.Sub(client.windowStart) >= rl.window {
		rl.clients.Put(clientIP, &clientInfo{windowStart: now, requests: 1})
		return true
	}

	client.requests++
	if client.requests > rl.limit {
		if metrics != nil {
			atomic.AddInt64(&metrics.rateLimitHits, 1)
		}
		return false
	}
	return true
}
