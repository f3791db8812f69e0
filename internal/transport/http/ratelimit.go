package http

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateLimiter admits at most limit events per fixed window.
type rateLimiter struct {
	clock  clock.Clock
	limit  int
	window time.Duration

	mu      sync.Mutex
	started time.Time
	counter int
}

func newRateLimiter(clk clock.Clock, limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{clock: clk, limit: limit, window: window, started: clk.Now()}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if now := r.clock.Now(); now.Sub(r.started) >= r.window {
		r.started = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
