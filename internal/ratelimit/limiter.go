// Package ratelimit implements the fixed-window limiter guarding the sensitive
// auth endpoints (login, 2FA, password change).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed bool
	// Remaining is the number of attempts left in the current window.
	Remaining int
	// RetryAfter is the time until the window resets; meaningful when !Allowed.
	RetryAfter time.Duration
}

// Limiter counts an attempt against key and reports whether it is within budget.
// Every call counts, allowed or not.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a process-local fixed-window limiter. Used when Redis is not configured.
type MemoryLimiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
	calls   int
}

// NewMemoryLimiter allows max attempts per key per period.
func NewMemoryLimiter(max int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: max, period: period, now: time.Now, windows: make(map[string]*window)}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%1024 == 0 {
		l.sweep(now)
	}
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.period)) {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return result(w.count, l.max, w.start.Add(l.period).Sub(now)), nil
}

// sweep drops expired windows so idle keys do not accumulate.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.start.Add(l.period)) {
			delete(l.windows, k)
		}
	}
}

func result(count, max int, ttl time.Duration) Result {
	if count > max {
		return Result{Allowed: false, Remaining: 0, RetryAfter: ttl}
	}
	return Result{Allowed: true, Remaining: max - count, RetryAfter: ttl}
}
