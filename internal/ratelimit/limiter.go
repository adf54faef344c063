package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding window requests budget: no more than capacity acquisitions
// are allowed during any window of the configured duration
type Limiter struct {
	window   time.Duration
	capacity int

	mu sync.Mutex
	// Timestamps of granted acquisitions, the oldest one goes first
	requests []time.Time
	now      func() time.Time
}

// New creates a limiter. A capacity <= 0 produces a limiter that never grants
// an acquisition, which is a valid way to force callers onto their fallback path
func New(window time.Duration, capacity int) *Limiter {
	l := &Limiter{
		window:   window,
		capacity: capacity,
		now:      time.Now,
	}

	if capacity > 0 {
		l.requests = make([]time.Time, 0, capacity)
	}

	return l
}

func (l *Limiter) TryAcquire() bool {
	if l.capacity <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.requests) == 0 {
		l.requests = append(l.requests, now)
		return true
	}

	if now.Sub(l.requests[0]) >= l.window {
		// Evict only the oldest record: the rest of the window is still checked on the next calls
		l.requests = append(l.requests[1:], now)
		return true
	}

	if len(l.requests) < l.capacity {
		l.requests = append(l.requests, now)
		return true
	}

	return false
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) Capacity() int {
	return l.capacity
}
