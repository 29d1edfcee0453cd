package services

import (
	"sync"
	"time"
)

// CallLimiter enforces the provider's calls-per-window ceiling with a
// sliding window of call timestamps. Unlike a refilling bucket, the
// sliding window guarantees the count never exceeds maxCalls in ANY
// rolling window, which is how the provider meters its quota.
type CallLimiter struct {
	mu       sync.Mutex
	maxCalls int
	window   time.Duration
	calls    []time.Time
	now      func() time.Time
}

// NewCallLimiter creates a limiter allowing maxCalls per rolling window
func NewCallLimiter(maxCalls int, window time.Duration) *CallLimiter {
	return &CallLimiter{
		maxCalls: maxCalls,
		window:   window,
		now:      time.Now,
	}
}

// Allow records and permits a call if the rolling window has room,
// otherwise it fails fast so the caller can surface ErrRateLimited.
func (l *CallLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	if len(l.calls) >= l.maxCalls {
		return false
	}
	l.calls = append(l.calls, l.now())
	return true
}

// Remaining returns how many calls are left in the current window
func (l *CallLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return l.maxCalls - len(l.calls)
}

// prune drops timestamps that have slid out of the window. Caller holds mu.
func (l *CallLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	kept := l.calls[:0]
	for _, t := range l.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls = kept
}
