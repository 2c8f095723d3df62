// -------------------------------------------------------------------------------
// Client Cache - Per-Identity Broker Client Reuse
//
// Author: Alex Freidah
//
// Maps caller identity to a lazily-constructed, reusable broker client.
// Broker clients carry their own authentication state and TCP connections,
// so they are expensive to build and must never be created per-request. The
// cache bounds entry count with least-recently-used eviction and entry
// lifetime with a keep-alive sweep. Eviction only unlinks an entry; the
// (potentially slow) connection teardown is deferred to the sweep, which the
// cache brings forward with a debounced re-arm of the cleanup timer.
// -------------------------------------------------------------------------------

package kafka

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/afreidah/kafka-rest-proxy/internal/audit"
	"github.com/afreidah/kafka-rest-proxy/internal/auth"
	"github.com/afreidah/kafka-rest-proxy/internal/telemetry"
)

// cacheEntry is one identity's slot in the cache. It lives in the recency
// list while active and in the pending slice between eviction and teardown.
type cacheEntry struct {
	identity string
	client   *Client
	lastUsed time.Time
}

// ClientCacheConfig holds the parameters for creating a ClientCache.
type ClientCacheConfig struct {
	MaxClients   int                                                   // Entry cap before LRU eviction
	KeepAlive    time.Duration                                         // Idle lifetime before expiry
	CleanupDelay time.Duration                                         // Debounce window for the post-eviction sweep
	Timer        *CleanupTimer                                         // Caller-owned sweep timer; nil disables re-arming
	NewClient    func(auth.Credentials, auth.Method) (*Client, error)  // Client factory, usually Factory.Make
}

// ClientCache is the per-identity broker client cache. Two views cover one
// entry set: a recency-ordered list (front = most recently touched) and an
// identity-keyed map into it. Both are mutated under one lock acquisition,
// so no caller ever observes one view stale relative to the other. Client
// teardown happens outside the lock, one client at a time.
type ClientCache struct {
	mu         sync.Mutex
	recency    *list.List               // of *cacheEntry, front = MRU
	byIdentity map[string]*list.Element // identity -> recency element
	pending    []*cacheEntry            // evicted, awaiting teardown

	maxClients   int
	keepAlive    time.Duration
	cleanupDelay time.Duration
	timer        *CleanupTimer

	newClient func(auth.Credentials, auth.Method) (*Client, error)
	now       func() time.Time
}

// NewClientCache creates an empty cache. The timer is caller-owned: the
// cache only re-arms it, never creates, fires, or destroys it.
func NewClientCache(cfg *ClientCacheConfig) *ClientCache {
	return &ClientCache{
		recency:      list.New(),
		byIdentity:   make(map[string]*list.Element),
		maxClients:   cfg.MaxClients,
		keepAlive:    cfg.KeepAlive,
		cleanupDelay: cfg.CleanupDelay,
		timer:        cfg.Timer,
		newClient:    cfg.NewClient,
		now:          time.Now,
	}
}

// -------------------------------------------------------------------------
// HOT PATH
// -------------------------------------------------------------------------

// FetchOrInsert returns the cached client for the given identity, building
// one if absent. Capacity pressure is resolved by evicting the
// least-recently-used entry, never by refusing the caller; a changed secret
// is applied to the existing client in place, never by reconstruction. The
// error return covers only client construction, which cannot fail once the
// factory's template has validated.
//
// The returned handle is shared: the cache may stop its underlying
// connections at any future sweep, and callers must tolerate that.
func (c *ClientCache) FetchOrInsert(creds auth.Credentials, method auth.Method) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byIdentity[creds.Name]; ok {
		e := el.Value.(*cacheEntry)

		// A changed secret updates the client in place so it reconnects
		// with the new credentials on its own schedule.
		if e.client.Password() != creds.Pass {
			slog.Debug("Updating password for user", "identity", creds.Name)
			e.client.UpdatePassword(creds.Pass)
		} else {
			slog.Debug("Reuse client for user", "identity", creds.Name)
		}

		e.lastUsed = c.now()
		c.recency.MoveToFront(el)
		c.ensureSweepScheduled()
		telemetry.CacheFetchesTotal.WithLabelValues("hit").Inc()
		return e.client, nil
	}

	telemetry.CacheFetchesTotal.WithLabelValues("miss").Inc()

	// Evict before inserting so the cache never exceeds its maximum by more
	// than the entry being inserted.
	if c.recency.Len() >= c.maxClients && c.recency.Len() > 0 {
		tail := c.recency.Back()
		evicted := tail.Value.(*cacheEntry)
		slog.Debug("Cache size reached, evicting", "identity", evicted.identity)

		c.recency.Remove(tail)
		delete(c.byIdentity, evicted.identity)
		c.pending = append(c.pending, evicted)
		telemetry.CacheEvictionsTotal.Inc()

		c.debounceSweep()
	}

	slog.Debug("Make client for user", "identity", creds.Name)
	client, err := c.newClient(creds, method)
	if err != nil {
		telemetry.CacheSize.Set(float64(c.recency.Len()))
		return nil, err
	}

	e := &cacheEntry{identity: creds.Name, client: client, lastUsed: c.now()}
	c.byIdentity[creds.Name] = c.recency.PushFront(e)
	c.ensureSweepScheduled()
	telemetry.CacheSize.Set(float64(c.recency.Len()))
	return client, nil
}

// ensureSweepScheduled arms the keep-alive sweep when the timer is idle. The
// timer disarms itself after firing, so without this a cache populated below
// capacity would never sweep and idle clients would be held for the life of
// the process. Callers must hold c.mu.
func (c *ClientCache) ensureSweepScheduled() {
	if c.timer != nil && !c.timer.Armed() {
		c.timer.Rearm(c.keepAlive)
	}
}

// debounceSweep brings the sweep forward after an eviction without re-arming
// the timer on every eviction event. Callers must hold c.mu.
func (c *ClientCache) debounceSweep() {
	if c.timer == nil {
		return
	}
	proposed := c.now().Add(c.cleanupDelay)
	if shouldRearm(c.timer.Armed(), c.timer.Deadline(), proposed) {
		c.timer.Rearm(c.cleanupDelay)
	}
}

// -------------------------------------------------------------------------
// SWEEP AND SHUTDOWN
// -------------------------------------------------------------------------

// CleanStaleClients removes every entry idle longer than the keep-alive and
// stops its client, then unconditionally drains the pending-teardown buffer.
// Invoked by the cleanup timer's fire callback. Expiry is a full scan of the
// recency list: credential refreshes update last-used without implying
// recency position, so age and recency are not the same ordering.
func (c *ClientCache) CleanStaleClients(ctx context.Context) {
	c.mu.Lock()
	now := c.now()
	var expired []*cacheEntry
	for el := c.recency.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*cacheEntry)
		if !now.Before(e.lastUsed.Add(c.keepAlive)) {
			c.recency.Remove(el)
			delete(c.byIdentity, e.identity)
			expired = append(expired, e)
		}
		el = next
	}
	pending := c.pending
	c.pending = nil
	telemetry.CacheSize.Set(float64(c.recency.Len()))
	telemetry.CacheExpirationsTotal.Add(float64(len(expired)))
	c.mu.Unlock()

	// Teardown runs outside the lock so the hot path stays non-blocking
	// while connections close. Expired entries are stopped before the
	// pending buffer is drained.
	c.stopAll(ctx, expired)
	c.stopAll(ctx, pending)

	if len(expired)+len(pending) > 0 {
		audit.Log(ctx, "cache.Sweep",
			slog.Int("expired", len(expired)),
			slog.Int("evicted", len(pending)),
		)
	}
}

// Stop unconditionally drains the index and the pending-teardown buffer,
// waiting for every client's stop attempt to be observed. Used exactly once,
// at process shutdown. After Stop returns, Size is zero.
func (c *ClientCache) Stop(ctx context.Context) {
	c.mu.Lock()
	var active []*cacheEntry
	for el := c.recency.Front(); el != nil; el = el.Next() {
		active = append(active, el.Value.(*cacheEntry))
	}
	c.recency.Init()
	clear(c.byIdentity)
	pending := c.pending
	c.pending = nil
	telemetry.CacheSize.Set(0)
	c.mu.Unlock()

	c.stopAll(ctx, active)
	c.stopAll(ctx, pending)

	audit.Log(ctx, "cache.Drain",
		slog.Int("active", len(active)),
		slog.Int("evicted", len(pending)),
	)
}

// stopAll stops each entry's client sequentially, one at a time, bounding
// the instantaneous teardown load. A failed stop is logged and never aborts
// the loop; there is nothing actionable about a client that will not close.
func (c *ClientCache) stopAll(ctx context.Context, entries []*cacheEntry) {
	for _, e := range entries {
		if err := e.client.Stop(ctx); err != nil {
			telemetry.ClientStopFailuresTotal.Inc()
			slog.Debug("Client stop failed", "identity", e.identity, "error", err)
		}
	}
}

// -------------------------------------------------------------------------
// INTROSPECTION
// -------------------------------------------------------------------------

// Size returns the number of active entries in the index. Entries awaiting
// teardown are not counted.
func (c *ClientCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// MaxSize returns the configured maximum entry count.
func (c *ClientCache) MaxSize() int {
	return c.maxClients
}
