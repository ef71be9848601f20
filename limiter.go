package nwc

import (
	"sync"
	"time"
)

// RateLimiter is a sliding-window request limiter. It is an explicit policy
// object: construct one and assign it to Session.Limiter to serialize or cap
// calls against a wallet that throttles aggressively. Sessions never create
// one on their own.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	times  []time.Time
}

// NewRateLimiter allows at most limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, window: window}
}

// Allow records a request, or returns ErrRateLimited when the window is
// already full.
func (l *RateLimiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	valid := l.times[:0]
	for _, t := range l.times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	l.times = valid

	if len(l.times) >= l.limit {
		return ErrRateLimited
	}
	l.times = append(l.times, now)
	return nil
}

// Remaining reports how many requests the current window still admits.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	active := 0
	for _, t := range l.times {
		if t.After(cutoff) {
			active++
		}
	}
	if active >= l.limit {
		return 0
	}
	return l.limit - active
}
