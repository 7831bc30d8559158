package radius

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	rateLimitWindow = 10 * time.Second
	rateLimitBudget = 50
)

// sourceWindow tracks one source address. The count is reset when a packet
// arrives after the window has elapsed.
type sourceWindow struct {
	mu      sync.Mutex
	count   int
	started time.Time
}

// rateLimiter allows at most rateLimitBudget datagrams per source per
// rateLimitWindow. Stale windows are evicted by Sweep.
type rateLimiter struct {
	sources sync.Map // source address -> *sourceWindow
	dropped atomic.Uint64
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{}
}

// Allow performs the increment-and-test for one datagram
func (r *rateLimiter) Allow(source string) bool {
	return r.allowAt(source, time.Now())
}

func (r *rateLimiter) allowAt(source string, now time.Time) bool {
	v, _ := r.sources.LoadOrStore(source, &sourceWindow{started: now})
	w := v.(*sourceWindow)

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Sub(w.started) >= rateLimitWindow {
		w.started = now
		w.count = 0
	}
	w.count++
	if w.count > rateLimitBudget {
		r.dropped.Add(1)
		return false
	}
	return true
}

// Sweep evicts windows idle for longer than the window length
func (r *rateLimiter) Sweep() {
	r.sweepAt(time.Now())
}

func (r *rateLimiter) sweepAt(now time.Time) {
	r.sources.Range(func(key, value interface{}) bool {
		w := value.(*sourceWindow)
		w.mu.Lock()
		expired := now.Sub(w.started) >= rateLimitWindow
		w.mu.Unlock()
		if expired {
			r.sources.Delete(key)
		}
		return true
	})
}

// Dropped returns the total number of rate-limited datagrams
func (r *rateLimiter) Dropped() uint64 {
	return r.dropped.Load()
}
