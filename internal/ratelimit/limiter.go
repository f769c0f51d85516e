// Package ratelimit provides per-user sliding-window admission control for
// inbound bot requests.
//
// The window is process-local and deliberately not persisted: losing it on
// restart fails open, which only relaxes abuse throttling and never affects
// correctness. Upstream-courtesy rate limiting toward the paper index is a
// separate token bucket inside the search client.
package ratelimit

import (
	"sync"
	"time"
)

// Default admission policy.
const (
	// DefaultRequests is the default number of admissions per window.
	DefaultRequests = 5

	// DefaultWindow is the default rolling window duration.
	DefaultWindow = 60 * time.Second
)

// Limiter admits at most N requests per user within a rolling window W.
// It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	windows  map[int64][]time.Time
	requests int
	window   time.Duration
	now      func() time.Time
}

// New creates a Limiter admitting requests admissions per window. Zero
// values fall back to the defaults.
func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		windows:  make(map[int64][]time.Time),
		requests: requests,
		window:   window,
		now:      time.Now,
	}
}

// NewWithClock creates a Limiter with an injected clock for tests.
func NewWithClock(requests int, window time.Duration, now func() time.Time) *Limiter {
	l := New(requests, window)
	l.now = now
	return l
}

// Admit prunes entries older than the window, then admits iff the pruned
// count is below the quota. The new timestamp is recorded only on admission.
func (l *Limiter) Admit(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	entries := l.windows[userID]
	pruned := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= l.requests {
		l.windows[userID] = pruned
		return false
	}

	l.windows[userID] = append(pruned, now)
	return true
}

// Outstanding returns the current admitted count inside the window for
// userID, after pruning. Used for observability.
func (l *Limiter) Outstanding(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	count := 0
	for _, ts := range l.windows[userID] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
