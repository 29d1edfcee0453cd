package services

import (
	"testing"
	"time"
)

func TestCallLimiterAllowsUpToMax(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	l := NewCallLimiter(3, time.Minute)
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Fatalf("call %d denied, want allowed", i+1)
		}
	}
	if l.Allow() {
		t.Fatal("call 4 allowed, want denied")
	}
	if got := l.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}
}

func TestCallLimiterSlidingWindow(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	current := base
	l := NewCallLimiter(2, time.Minute)
	l.now = func() time.Time { return current }

	if !l.Allow() {
		t.Fatal("first call denied")
	}

	current = base.Add(30 * time.Second)
	if !l.Allow() {
		t.Fatal("second call denied")
	}
	if l.Allow() {
		t.Fatal("third call allowed inside the window")
	}

	// 61s after the first call it has slid out, the second has not
	current = base.Add(61 * time.Second)
	if !l.Allow() {
		t.Fatal("call denied after the oldest slid out")
	}
	if l.Allow() {
		t.Fatal("window should be full again")
	}
}

func TestCallLimiterNeverExceedsMaxInAnyRollingWindow(t *testing.T) {
	const max = 60
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	current := base
	l := NewCallLimiter(max, time.Minute)
	l.now = func() time.Time { return current }

	// Hammer the limiter every 200ms for five minutes and record every
	// granted call.
	var granted []time.Time
	for i := 0; i < 5*60*5; i++ {
		current = base.Add(time.Duration(i) * 200 * time.Millisecond)
		if l.Allow() {
			granted = append(granted, current)
		}
	}

	// No 60s window may contain more than max grants
	for i := range granted {
		count := 1
		for j := i + 1; j < len(granted); j++ {
			if granted[j].Sub(granted[i]) < time.Minute {
				count++
			}
		}
		if count > max {
			t.Fatalf("window starting at %v contains %d grants, want at most %d", granted[i], count, max)
		}
	}
}
