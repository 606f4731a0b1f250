package http

import (
	"sync"
	"time"
)

// rateLimiter counts inbound frames of one connection in fixed one-minute windows.
type rateLimiter struct {
	limit int
	now   func() time.Time

	mu      sync.Mutex
	counter int
	window  time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	return &rateLimiter{limit: limit, now: time.Now}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Sub(r.window) >= time.Minute {
		r.window = now
		r.counter = 0
	}
	r.counter++
	return r.counter <= r.limit
}
