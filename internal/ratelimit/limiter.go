// Package ratelimit enforces a per-domain sliding-window request budget:
// at most MaxCalls requests leave for a domain within any rolling Window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limit is the per-domain budget
type Limit struct {
	MaxCalls int
	Window   time.Duration
}

// Limiter tracks request timestamps per domain
type Limiter struct {
	mu      sync.Mutex
	def     Limit
	limits  map[string]Limit
	windows map[string][]time.Time
}

// New creates a limiter with the default budget for unknown domains
func New(def Limit) *Limiter {
	if def.MaxCalls <= 0 {
		def.MaxCalls = 1
	}
	if def.Window <= 0 {
		def.Window = time.Second
	}
	return &Limiter{
		def:     def,
		limits:  make(map[string]Limit),
		windows: make(map[string][]time.Time),
	}
}

// SetLimit overrides the budget for one domain
func (l *Limiter) SetLimit(domain string, limit Limit) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit.MaxCalls <= 0 || limit.Window <= 0 {
		delete(l.limits, domain)
		return
	}
	l.limits[domain] = limit
}

// Acquire blocks until the domain's window has room for one more request,
// then records the request timestamp. The context aborts the wait.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	for {
		l.mu.Lock()
		limit, ok := l.limits[domain]
		if !ok {
			limit = l.def
		}

		now := time.Now()
		window := l.trim(l.windows[domain], now, limit.Window)

		if len(window) < limit.MaxCalls {
			l.windows[domain] = append(window, now)
			l.mu.Unlock()
			return nil
		}

		// Oldest timestamp leaving the window frees a slot
		wait := window[0].Add(limit.Window).Sub(now)
		l.windows[domain] = window
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// trim drops timestamps older than the window
func (l *Limiter) trim(window []time.Time, now time.Time, d time.Duration) []time.Time {
	cutoff := now.Add(-d)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return window[i:]
}

// Pending returns the number of live timestamps for a domain
func (l *Limiter) Pending(domain string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.limits[domain]
	if !ok {
		limit = l.def
	}
	window := l.trim(l.windows[domain], time.Now(), limit.Window)
	l.windows[domain] = window
	return len(window)
}
