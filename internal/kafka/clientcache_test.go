// -------------------------------------------------------------------------------
// Client Cache Tests - LRU, Keep-Alive, and Teardown Behavior
//
// Author: Alex Freidah
//
// Unit tests for the per-identity client cache: size bounds, handle reuse,
// in-place credential updates, LRU eviction order, recency promotion,
// keep-alive expiry, shutdown draining, and exactly-once teardown. Uses fake
// clients with an injected close function so no broker is needed.
// -------------------------------------------------------------------------------

package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/afreidah/kafka-rest-proxy/internal/auth"
)

// stopRecorder tracks which identities were stopped and how many times.
type stopRecorder struct {
	stops   []string
	failFor map[string]error
}

func (r *stopRecorder) count(identity string) int {
	n := 0
	for _, s := range r.stops {
		if s == identity {
			n++
		}
	}
	return n
}

// newTestCache builds a cache whose factory produces fake clients that
// record teardown calls on the given recorder.
func newTestCache(maxClients int, keepAlive time.Duration, rec *stopRecorder) *ClientCache {
	return NewClientCache(&ClientCacheConfig{
		MaxClients:   maxClients,
		KeepAlive:    keepAlive,
		CleanupDelay: time.Second,
		NewClient: func(creds auth.Credentials, _ auth.Method) (*Client, error) {
			c := &Client{identity: creds.Name}
			c.creds.Store(&creds)
			c.closeFn = func(context.Context) error {
				rec.stops = append(rec.stops, c.identity)
				if err, ok := rec.failFor[c.identity]; ok {
					return err
				}
				return nil
			}
			return c, nil
		},
	})
}

func fetch(t *testing.T, c *ClientCache, name, pass string) *Client {
	t.Helper()
	client, err := c.FetchOrInsert(auth.Credentials{Name: name, Pass: pass}, auth.MethodBasic)
	if err != nil {
		t.Fatalf("FetchOrInsert(%s): %v", name, err)
	}
	return client
}

// -------------------------------------------------------------------------
// HOT PATH
// -------------------------------------------------------------------------

func TestFetchOrInsert_SizeNeverExceedsMax(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(3, time.Minute, rec)

	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		fetch(t, c, name, "pw")
		if c.Size() > c.MaxSize() {
			t.Fatalf("size %d exceeds max %d after inserting %s", c.Size(), c.MaxSize(), name)
		}
	}
	if c.Size() != 3 {
		t.Errorf("size = %d, want 3", c.Size())
	}
}

func TestFetchOrInsert_SamePasswordReturnsSameHandle(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(5, time.Minute, rec)

	first := fetch(t, c, "alice", "pw")
	second := fetch(t, c, "alice", "pw")

	if first != second {
		t.Error("second fetch returned a different handle")
	}
	if c.Size() != 1 {
		t.Errorf("size = %d, want 1", c.Size())
	}
}

func TestFetchOrInsert_ChangedPasswordUpdatesInPlace(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(5, time.Minute, rec)

	first := fetch(t, c, "alice", "old")
	second := fetch(t, c, "alice", "new")

	if first != second {
		t.Error("password change reconstructed the client instead of updating it")
	}
	if got := second.Password(); got != "new" {
		t.Errorf("Password = %q, want new", got)
	}
	if len(rec.stops) != 0 {
		t.Errorf("password change stopped a client: %v", rec.stops)
	}
}

func TestFetchOrInsert_EvictsLeastRecentlyUsed(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(3, time.Minute, rec)

	fetch(t, c, "a", "pw")
	fetch(t, c, "b", "pw")
	fetch(t, c, "c", "pw")
	fetch(t, c, "d", "pw") // a is LRU and must be evicted

	if c.Size() != 3 {
		t.Fatalf("size = %d, want 3", c.Size())
	}
	if len(c.pending) != 1 || c.pending[0].identity != "a" {
		t.Fatalf("pending = %+v, want exactly [a]", c.pending)
	}

	// The other three remain active and reusable.
	for _, name := range []string{"b", "c", "d"} {
		if _, ok := c.byIdentity[name]; !ok {
			t.Errorf("%s missing from index after eviction", name)
		}
	}
}

func TestFetchOrInsert_TouchChangesEvictionOrder(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(2, time.Minute, rec)

	// Scenario: insert A, B; insert C evicts A; touch B; insert D evicts C.
	fetch(t, c, "A", "pw")
	fetch(t, c, "B", "pw")
	fetch(t, c, "C", "pw")

	if len(c.pending) != 1 || c.pending[0].identity != "A" {
		t.Fatalf("after inserting C, pending = %+v, want [A]", c.pending)
	}

	fetch(t, c, "B", "pw") // promote B to front
	fetch(t, c, "D", "pw") // C is now the tail

	if len(c.pending) != 2 || c.pending[1].identity != "C" {
		t.Fatalf("after inserting D, pending = %+v, want [A C]", c.pending)
	}
	for _, name := range []string{"B", "D"} {
		if _, ok := c.byIdentity[name]; !ok {
			t.Errorf("%s missing from final active set", name)
		}
	}
}

func TestFetchOrInsert_FactoryErrorSurfaces(t *testing.T) {
	boom := errors.New("bad options")
	c := NewClientCache(&ClientCacheConfig{
		MaxClients: 2,
		KeepAlive:  time.Minute,
		NewClient: func(auth.Credentials, auth.Method) (*Client, error) {
			return nil, boom
		},
	})

	_, err := c.FetchOrInsert(auth.Credentials{Name: "alice"}, auth.MethodBasic)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want factory error", err)
	}
	if c.Size() != 0 {
		t.Errorf("size = %d after failed construction, want 0", c.Size())
	}
}

// -------------------------------------------------------------------------
// SWEEP
// -------------------------------------------------------------------------

func TestCleanStaleClients_ExpiresIdleEntries(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(5, time.Minute, rec)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	fetch(t, c, "idle", "pw")
	current = current.Add(40 * time.Second)
	fetch(t, c, "fresh", "pw")

	// idle is now 61s old, fresh 21s old.
	current = current.Add(21 * time.Second)
	c.CleanStaleClients(context.Background())

	if c.Size() != 1 {
		t.Fatalf("size = %d, want 1", c.Size())
	}
	if _, ok := c.byIdentity["fresh"]; !ok {
		t.Error("fresh entry was expired despite being touched within keep-alive")
	}
	if rec.count("idle") != 1 {
		t.Errorf("idle stopped %d times, want 1", rec.count("idle"))
	}
	if rec.count("fresh") != 0 {
		t.Errorf("fresh was stopped")
	}
}

func TestCleanStaleClients_ExpiryBoundaryIsInclusive(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(5, time.Minute, rec)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	fetch(t, c, "edge", "pw")
	current = current.Add(time.Minute) // lastUsed + keepAlive == now
	c.CleanStaleClients(context.Background())

	if c.Size() != 0 {
		t.Errorf("entry exactly at keep-alive boundary was retained")
	}
}

func TestCleanStaleClients_DrainsPendingUnconditionally(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(1, time.Hour, rec)

	fetch(t, c, "old", "pw")
	fetch(t, c, "new", "pw") // evicts old into pending

	c.CleanStaleClients(context.Background())

	if rec.count("old") != 1 {
		t.Errorf("evicted client stopped %d times, want 1", rec.count("old"))
	}
	if rec.count("new") != 0 {
		t.Error("active client was stopped by the sweep")
	}
	if len(c.pending) != 0 {
		t.Errorf("pending not drained: %+v", c.pending)
	}
}

func TestCleanStaleClients_ExpiredStoppedBeforePending(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(1, time.Minute, rec)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	fetch(t, c, "evicted", "pw")
	fetch(t, c, "expired", "pw") // evicts "evicted" into pending

	current = current.Add(2 * time.Minute)
	c.CleanStaleClients(context.Background())

	if len(rec.stops) != 2 {
		t.Fatalf("stops = %v, want 2 entries", rec.stops)
	}
	if rec.stops[0] != "expired" || rec.stops[1] != "evicted" {
		t.Errorf("stop order = %v, want [expired evicted]", rec.stops)
	}
}

func TestCleanStaleClients_StopFailureDoesNotAbortSweep(t *testing.T) {
	rec := &stopRecorder{failFor: map[string]error{"a": errors.New("connection wedged")}}
	c := newTestCache(5, time.Minute, rec)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	fetch(t, c, "a", "pw")
	fetch(t, c, "b", "pw")
	fetch(t, c, "c", "pw")

	current = current.Add(2 * time.Minute)
	c.CleanStaleClients(context.Background())

	for _, name := range []string{"a", "b", "c"} {
		if rec.count(name) != 1 {
			t.Errorf("%s stopped %d times, want 1", name, rec.count(name))
		}
	}
	if c.Size() != 0 {
		t.Errorf("size = %d, want 0", c.Size())
	}
}

// -------------------------------------------------------------------------
// SHUTDOWN
// -------------------------------------------------------------------------

func TestStop_DrainsIndexAndPending(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(2, time.Hour, rec)

	fetch(t, c, "a", "pw")
	fetch(t, c, "b", "pw")
	fetch(t, c, "c", "pw") // evicts a

	c.Stop(context.Background())

	if c.Size() != 0 {
		t.Errorf("size = %d after Stop, want 0", c.Size())
	}
	if len(c.pending) != 0 {
		t.Errorf("pending not empty after Stop: %+v", c.pending)
	}
	for _, name := range []string{"a", "b", "c"} {
		if rec.count(name) != 1 {
			t.Errorf("%s stopped %d times, want 1", name, rec.count(name))
		}
	}
}

func TestStop_NeverStopsAClientTwice(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(1, time.Nanosecond, rec)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	fetch(t, c, "evicted", "pw")
	fetch(t, c, "expired", "pw")

	current = current.Add(time.Second)
	c.CleanStaleClients(context.Background())
	c.CleanStaleClients(context.Background()) // second sweep finds nothing
	c.Stop(context.Background())

	for _, name := range []string{"evicted", "expired"} {
		if rec.count(name) != 1 {
			t.Errorf("%s stopped %d times, want exactly 1", name, rec.count(name))
		}
	}
}

func TestStop_CallerHeldHandleStopsOnlyOnce(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(2, time.Hour, rec)

	handle := fetch(t, c, "alice", "pw")
	c.Stop(context.Background())

	// A caller still holding the handle may race its own Stop against the
	// cache's; the teardown must not repeat.
	_ = handle.Stop(context.Background())

	if rec.count("alice") != 1 {
		t.Errorf("alice stopped %d times, want 1", rec.count("alice"))
	}
}

// -------------------------------------------------------------------------
// TIMER DEBOUNCE
// -------------------------------------------------------------------------

func TestFetchOrInsert_InsertArmsKeepAliveSweep(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(3, time.Hour, rec)
	timer := NewCleanupTimer(func() {})
	defer timer.Stop()
	c.timer = timer

	// A first insert into an under-capacity cache must schedule the sweep;
	// otherwise an idle entry would never be swept until an eviction occurs.
	fetch(t, c, "a", "pw")
	if !timer.Armed() {
		t.Fatal("timer not armed after insert")
	}
	if timer.Deadline().Before(time.Now().Add(30 * time.Minute)) {
		t.Errorf("insert armed the timer at %v, want roughly now+keep-alive", timer.Deadline())
	}
}

func TestFetchOrInsert_RearmsAfterSweepEmptiesCache(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(3, time.Minute, rec)
	timer := NewCleanupTimer(func() {})
	defer timer.Stop()
	c.timer = timer

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	fetch(t, c, "a", "pw")
	current = current.Add(2 * time.Minute)
	c.CleanStaleClients(context.Background())
	timer.Stop() // the timer is idle after firing

	if c.Size() != 0 {
		t.Fatalf("size = %d after sweep, want 0", c.Size())
	}

	fetch(t, c, "b", "pw")
	if !timer.Armed() {
		t.Fatal("timer not re-armed by an insert into an emptied cache")
	}
}

func TestFetchOrInsert_HitRearmsIdleTimer(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(3, time.Hour, rec)
	timer := NewCleanupTimer(func() {})
	defer timer.Stop()
	c.timer = timer

	fetch(t, c, "a", "pw")
	timer.Stop() // the timer is idle after firing

	fetch(t, c, "a", "pw")
	if !timer.Armed() {
		t.Fatal("timer not re-armed by a cache hit while entries remain")
	}
}

func TestEviction_ArmsIdleTimerWithinDebounceWindow(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(1, time.Hour, rec)
	timer := NewCleanupTimer(func() {})
	defer timer.Stop()
	c.timer = timer

	fetch(t, c, "a", "pw")
	timer.Stop()

	fetch(t, c, "b", "pw") // evicts a
	if !timer.Armed() {
		t.Fatal("timer not armed after eviction")
	}
	// The eviction schedules the debounced sweep, not the keep-alive one.
	if timer.Deadline().After(time.Now().Add(time.Minute)) {
		t.Errorf("eviction armed the timer at %v, want roughly now+cleanup delay", timer.Deadline())
	}
}

func TestEviction_DoesNotPushDeadlineOut(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(1, time.Hour, rec)
	timer := NewCleanupTimer(func() {})
	defer timer.Stop()
	c.timer = timer

	fetch(t, c, "a", "pw")
	fetch(t, c, "b", "pw") // arms the timer
	deadline := timer.Deadline()

	fetch(t, c, "c", "pw") // already armed within the window: leave it alone
	if timer.Deadline().After(deadline.Add(time.Millisecond)) {
		t.Errorf("eviction pushed deadline from %v to %v", deadline, timer.Deadline())
	}
}

func TestEviction_BringsDistantDeadlineForward(t *testing.T) {
	rec := &stopRecorder{}
	c := newTestCache(1, time.Hour, rec)
	timer := NewCleanupTimer(func() {})
	defer timer.Stop()
	c.timer = timer

	timer.Rearm(time.Hour) // scheduled far into the future
	distant := timer.Deadline()

	fetch(t, c, "a", "pw")
	fetch(t, c, "b", "pw") // evicts, should bring the sweep forward

	if !timer.Deadline().Before(distant) {
		t.Errorf("deadline %v not brought forward from %v", timer.Deadline(), distant)
	}
}
