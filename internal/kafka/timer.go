// -------------------------------------------------------------------------------
// Cleanup Timer - Debounced Sweep Scheduling
//
// Author: Alex Freidah
//
// Caller-owned one-shot timer that drives the client cache's stale sweep. The
// cache never creates or destroys the timer; it only re-arms it. The debounce
// decision itself is a pure function over (armed, deadline, proposed) so it
// can be tested without touching the timer internals.
// -------------------------------------------------------------------------------

package kafka

import (
	"sync"
	"time"
)

// CleanupTimer wraps a one-shot timer whose fire callback runs the cache
// sweep. Arming is idempotent: re-arming replaces any pending deadline.
type CleanupTimer struct {
	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	armed    bool
	fire     func()
}

// NewCleanupTimer creates an unarmed timer that invokes fire each time a
// deadline elapses. The callback runs on its own goroutine.
func NewCleanupTimer(fire func()) *CleanupTimer {
	return &CleanupTimer{fire: fire}
}

// Rearm schedules the timer to fire after d, replacing any pending deadline.
func (t *CleanupTimer) Rearm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.deadline = time.Now().Add(d)
	t.armed = true
	t.timer = time.AfterFunc(d, t.onFire)
}

// Armed reports whether a deadline is pending.
func (t *CleanupTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Deadline returns the pending deadline. Only meaningful while Armed.
func (t *CleanupTimer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Stop cancels any pending deadline. A callback already started keeps running.
func (t *CleanupTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.armed = false
}

func (t *CleanupTimer) onFire() {
	t.mu.Lock()
	t.armed = false
	t.mu.Unlock()
	t.fire()
}

// shouldRearm decides whether an eviction should bring the sweep forward.
// Re-arm when the timer is idle, or when its pending deadline is further out
// than the proposed one. A deadline already within the window is left alone
// so back-to-back evictions don't re-arm on every event.
func shouldRearm(armed bool, deadline, proposed time.Time) bool {
	return !armed || deadline.After(proposed)
}
