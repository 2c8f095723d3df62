// -------------------------------------------------------------------------------
// Configuration - Kafka REST Proxy Settings
//
// Author: Alex Freidah
//
// Configuration types and loader for the REST proxy. Supports environment
// variable expansion in YAML values using ${VAR} syntax. Validates required
// fields before returning to catch misconfiguration early.
// -------------------------------------------------------------------------------

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// -------------------------------------------------------------------------
// CONFIGURATION TYPES
// -------------------------------------------------------------------------

// Config holds the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Broker    BrokerConfig    `yaml:"broker"`
	Cache     CacheConfig     `yaml:"client_cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // Per-request deadline for broker calls (default: 30s)
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig holds optional TLS settings for the HTTP listener. When CertFile
// and KeyFile are both set, the server listens with TLS. When both are empty,
// the server runs plain HTTP.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file"`   // Path to PEM-encoded certificate (or chain)
	KeyFile    string `yaml:"key_file"`    // Path to PEM-encoded private key
	MinVersion string `yaml:"min_version"` // Minimum TLS version: "1.2" (default) or "1.3"
}

// BrokerConfig is the template configuration for broker clients. The client
// cache clones it for every caller identity; only the SASL credentials differ
// between clones.
type BrokerConfig struct {
	SeedBrokers    []string      `yaml:"seed_brokers"`    // host:port seeds for the Kafka-compatible cluster
	ClientID       string        `yaml:"client_id"`       // Kafka client ID reported to the broker
	ProduceTimeout time.Duration `yaml:"produce_timeout"` // Record delivery timeout (default: 10s)
	RequestRetries int           `yaml:"request_retries"` // Broker request retries (default: 3)
	SASLAnonymous  SASLConfig    `yaml:"sasl_anonymous"`  // Credentials used when a request carries no authentication
}

// SASLConfig holds a SCRAM-SHA-256 credential pair.
type SASLConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CacheConfig bounds the per-identity broker client cache.
type CacheConfig struct {
	MaxClients   int           `yaml:"max_clients"`   // Maximum cached clients before LRU eviction (default: 10)
	KeepAlive    time.Duration `yaml:"keep_alive"`    // Idle lifetime before a cached client expires (default: 5m)
	CleanupDelay time.Duration `yaml:"cleanup_delay"` // Debounce window for the post-eviction sweep (default: 1s)
}

// RateLimitConfig holds per-identity rate limiting settings. Disabled by default.
type RateLimitConfig struct {
	Enabled        bool    `yaml:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec"` // Token refill rate (default: 100)
	Burst          int     `yaml:"burst"`            // Max burst size (default: 200)
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate"`
	Insecure   bool    `yaml:"insecure"` // Use insecure connection (no TLS)
}

// -------------------------------------------------------------------------
// CONFIGURATION LOADER
// -------------------------------------------------------------------------

// LoadConfig reads and parses the configuration file with environment variable
// expansion. Returns an error if the file cannot be read, parsed, or validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// --- Expand environment variables ---
	expanded := os.Expand(string(data), os.Getenv)

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.SetDefaultsAndValidate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// -------------------------------------------------------------------------
// VALIDATION
// -------------------------------------------------------------------------

// SetDefaultsAndValidate applies default values for optional fields and checks
// that all required configuration values are present.
func (c *Config) SetDefaultsAndValidate() error {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8082"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.TLS.MinVersion == "" {
		c.Server.TLS.MinVersion = "1.2"
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls: cert_file and key_file must be set together")
	}

	if len(c.Broker.SeedBrokers) == 0 {
		return fmt.Errorf("broker.seed_brokers is required")
	}
	for _, b := range c.Broker.SeedBrokers {
		if !strings.Contains(b, ":") {
			return fmt.Errorf("broker.seed_brokers: %q missing port", b)
		}
	}
	if c.Broker.ClientID == "" {
		c.Broker.ClientID = "kafka-rest-proxy"
	}
	if c.Broker.ProduceTimeout == 0 {
		c.Broker.ProduceTimeout = 10 * time.Second
	}
	if c.Broker.RequestRetries == 0 {
		c.Broker.RequestRetries = 3
	}

	if c.Cache.MaxClients == 0 {
		c.Cache.MaxClients = 10
	}
	if c.Cache.MaxClients < 0 {
		return fmt.Errorf("client_cache.max_clients must be positive")
	}
	if c.Cache.KeepAlive == 0 {
		c.Cache.KeepAlive = 5 * time.Minute
	}
	if c.Cache.KeepAlive < 0 {
		return fmt.Errorf("client_cache.keep_alive must be positive")
	}
	if c.Cache.CleanupDelay == 0 {
		c.Cache.CleanupDelay = 1 * time.Second
	}
	if c.Cache.CleanupDelay < 0 {
		return fmt.Errorf("client_cache.cleanup_delay must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerSec == 0 {
			c.RateLimit.RequestsPerSec = 100
		}
		if c.RateLimit.Burst == 0 {
			c.RateLimit.Burst = 200
		}
	}

	if c.Telemetry.Metrics.Enabled && c.Telemetry.Metrics.Path == "" {
		c.Telemetry.Metrics.Path = "/metrics"
	}
	if c.Telemetry.Tracing.Enabled {
		if c.Telemetry.Tracing.Endpoint == "" {
			return fmt.Errorf("telemetry.tracing.endpoint is required when tracing is enabled")
		}
		if c.Telemetry.Tracing.SampleRate == 0 {
			c.Telemetry.Tracing.SampleRate = 0.1
		}
		if c.Telemetry.Tracing.SampleRate < 0 || c.Telemetry.Tracing.SampleRate > 1 {
			return fmt.Errorf("telemetry.tracing.sample_rate must be between 0 and 1")
		}
	}

	return nil
}
