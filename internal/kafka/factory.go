// -------------------------------------------------------------------------------
// Client Factory - Template Configuration Overlay
//
// Author: Alex Freidah
//
// Builds broker clients from the template configuration plus per-identity
// credentials. When the request authenticated with HTTP Basic, the factory
// overlays SASL SCRAM-SHA-256 with the caller's identity and secret;
// anonymous requests use the proxy's configured shared credentials, or no
// SASL at all when none are configured. The factory never touches the cache
// index.
// -------------------------------------------------------------------------------

package kafka

import (
	"context"
	"fmt"

	"github.com/afreidah/kafka-rest-proxy/internal/auth"
	"github.com/afreidah/kafka-rest-proxy/internal/config"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// anonymousIdentity keys the shared client used by unauthenticated requests
// when no anonymous SASL username is configured.
const anonymousIdentity = "anonymous"

// Factory builds broker client handles from a template configuration.
type Factory struct {
	cfg config.BrokerConfig
}

// NewFactory validates the template configuration and returns a factory.
// Validation happens once here so Make cannot fail on template problems
// on the request hot path.
func NewFactory(cfg config.BrokerConfig) (*Factory, error) {
	f := &Factory{cfg: cfg}

	sample := &Client{identity: anonymousIdentity}
	sample.creds.Store(&auth.Credentials{Name: anonymousIdentity})
	opts := append(f.baseOpts(), kgo.SASL(sample.saslMechanism()))
	if err := kgo.ValidateOpts(opts...); err != nil {
		return nil, fmt.Errorf("invalid broker template configuration: %w", err)
	}

	return f, nil
}

// Anonymous returns the credentials used for requests that carry no
// authentication. Falls back to the "anonymous" identity when no shared
// SASL user is configured.
func (f *Factory) Anonymous() auth.Credentials {
	if f.cfg.SASLAnonymous.Username != "" {
		return auth.Credentials{
			Name: f.cfg.SASLAnonymous.Username,
			Pass: f.cfg.SASLAnonymous.Password,
		}
	}
	return auth.Credentials{Name: anonymousIdentity}
}

// Make constructs a new, not-yet-connected broker client for the given
// credentials. franz-go dials lazily, so construction is cheap and no
// connection exists until the client is first used.
func (f *Factory) Make(creds auth.Credentials, method auth.Method) (*Client, error) {
	c := &Client{identity: creds.Name}
	c.creds.Store(&creds)

	opts := f.baseOpts()
	if method == auth.MethodBasic || f.cfg.SASLAnonymous.Username != "" {
		opts = append(opts, kgo.SASL(c.saslMechanism()))
	}

	kcl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to construct broker client for %q: %w", creds.Name, err)
	}

	c.kcl = kcl
	c.adm = kadm.NewClient(kcl)
	c.closeFn = func(ctx context.Context) error {
		defer kcl.Close()
		if err := kcl.Flush(ctx); err != nil {
			return fmt.Errorf("failed to flush buffered records: %w", err)
		}
		return nil
	}

	return c, nil
}

// baseOpts clones the template configuration into franz-go options.
func (f *Factory) baseOpts() []kgo.Opt {
	return []kgo.Opt{
		kgo.SeedBrokers(f.cfg.SeedBrokers...),
		kgo.ClientID(f.cfg.ClientID),
		kgo.RecordDeliveryTimeout(f.cfg.ProduceTimeout),
		kgo.RequestRetries(f.cfg.RequestRetries),
		kgo.RecordPartitioner(pinnedPartitioner()),
	}
}

// pinnedPartitioner honors a caller-pinned partition and round-robins
// records produced without one. Record.Partition is -1 when the caller left
// the partition unset. A pin outside the topic's partition range is returned
// as-is and fails that record at produce time rather than being silently
// remapped.
func pinnedPartitioner() kgo.Partitioner {
	return kgo.BasicConsistentPartitioner(func(string) func(*kgo.Record, int) int {
		var next int
		return func(r *kgo.Record, n int) int {
			if r.Partition >= 0 {
				return int(r.Partition)
			}
			p := next % n
			next++
			return p
		}
	})
}

// saslMechanism returns a SCRAM-SHA-256 mechanism that reads the client's
// current credentials on every connection attempt, so in-place password
// updates apply at the next reconnect.
func (c *Client) saslMechanism() sasl.Mechanism {
	return scram.Sha256(func(context.Context) (scram.Auth, error) {
		cr := c.creds.Load()
		return scram.Auth{User: cr.Name, Pass: cr.Pass}, nil
	})
}
