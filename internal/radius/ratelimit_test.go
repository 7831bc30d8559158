package radius

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	r := newRateLimiter()
	now := time.Now()

	for i := 0; i < rateLimitBudget; i++ {
		if !r.allowAt("10.0.0.1", now.Add(time.Duration(i)*time.Millisecond)) {
			t.Fatalf("datagram %d dropped within budget", i+1)
		}
	}
}

func TestRateLimiterDropsExcess(t *testing.T) {
	r := newRateLimiter()
	now := time.Now()

	allowed := 0
	for i := 0; i < 60; i++ {
		if r.allowAt("10.0.0.1", now.Add(time.Duration(i)*time.Millisecond)) {
			allowed++
		}
	}
	if allowed != rateLimitBudget {
		t.Errorf("allowed %d of 60, want %d", allowed, rateLimitBudget)
	}
	if r.Dropped() != 10 {
		t.Errorf("dropped = %d, want 10", r.Dropped())
	}
}

func TestRateLimiterPerSource(t *testing.T) {
	r := newRateLimiter()
	now := time.Now()

	for i := 0; i < rateLimitBudget; i++ {
		r.allowAt("10.0.0.1", now)
	}
	if r.allowAt("10.0.0.1", now) {
		t.Error("first source exceeded its budget")
	}
	if !r.allowAt("10.0.0.2", now) {
		t.Error("second source throttled by the first")
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	r := newRateLimiter()
	now := time.Now()

	for i := 0; i < rateLimitBudget+5; i++ {
		r.allowAt("10.0.0.1", now)
	}
	if r.allowAt("10.0.0.1", now) {
		t.Fatal("budget not exhausted")
	}
	if !r.allowAt("10.0.0.1", now.Add(rateLimitWindow)) {
		t.Error("window did not reset after expiry")
	}
}

func TestRateLimiterSweepEvicts(t *testing.T) {
	r := newRateLimiter()
	now := time.Now()

	r.allowAt("10.0.0.1", now)
	r.allowAt("10.0.0.2", now)
	r.sweepAt(now.Add(rateLimitWindow + time.Second))

	count := 0
	r.sources.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	if count != 0 {
		t.Errorf("%d windows survived the sweep, want 0", count)
	}
}
