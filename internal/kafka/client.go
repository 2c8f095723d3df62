// -------------------------------------------------------------------------------
// Broker Client Handle
//
// Author: Alex Freidah
//
// Shared-ownership wrapper around a franz-go broker client. The client cache
// and any caller that fetched the handle both hold live references; the cache
// may stop the handle's underlying connections at any future sweep (after
// eviction, expiry, or shutdown), so callers must tolerate a handle becoming
// unusable. Stop is guarded so the connections are torn down exactly once no
// matter which path gets there first.
// -------------------------------------------------------------------------------

package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/afreidah/kafka-rest-proxy/internal/auth"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Client is a per-identity broker client handle. Credentials live behind an
// atomic pointer consulted by the SASL callback on every (re)connect, so a
// password update takes effect the next time the underlying client dials
// without rebuilding the handle.
type Client struct {
	identity string
	creds    atomic.Pointer[auth.Credentials]

	kcl *kgo.Client
	adm *kadm.Client

	stopOnce sync.Once
	stopErr  error
	closeFn  func(context.Context) error
}

// Identity returns the caller principal this client was built for.
func (c *Client) Identity() string {
	return c.identity
}

// Password returns the secret currently configured on the client.
func (c *Client) Password() string {
	if cr := c.creds.Load(); cr != nil {
		return cr.Pass
	}
	return ""
}

// UpdatePassword swaps the configured secret in place. Existing broker
// connections are untouched; the new secret is used when the client
// reconnects on its own schedule.
func (c *Client) UpdatePassword(pass string) {
	cr := c.creds.Load()
	name := c.identity
	if cr != nil {
		name = cr.Name
	}
	c.creds.Store(&auth.Credentials{Name: name, Pass: pass})
}

// Produce synchronously produces the given records and returns the per-record
// results. Record partitions and offsets are filled in on success.
func (c *Client) Produce(ctx context.Context, recs ...*kgo.Record) kgo.ProduceResults {
	return c.kcl.ProduceSync(ctx, recs...)
}

// ListTopics returns the names of all topics visible to this identity,
// sorted ascending.
func (c *Client) ListTopics(ctx context.Context) ([]string, error) {
	details, err := c.adm.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return details.Names(), nil
}

// Stop flushes buffered records and releases the client's broker
// connections. Safe to call from multiple teardown paths; only the first
// call does the work, later calls return the recorded result.
func (c *Client) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		if c.closeFn != nil {
			c.stopErr = c.closeFn(ctx)
		}
	})
	return c.stopErr
}
