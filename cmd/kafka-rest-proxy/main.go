// -------------------------------------------------------------------------------
// Kafka REST Proxy - Per-Identity Broker Client Cache
//
// Author: Alex Freidah
//
// Entry point for the REST proxy service. Starts the HTTP server fronting a
// Kafka-compatible cluster, with per-caller broker clients held in a bounded
// LRU cache that expires idle connections on a debounced background sweep.
// -------------------------------------------------------------------------------

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/afreidah/kafka-rest-proxy/internal/audit"
	"github.com/afreidah/kafka-rest-proxy/internal/config"
	"github.com/afreidah/kafka-rest-proxy/internal/kafka"
	"github.com/afreidah/kafka-rest-proxy/internal/lifecycle"
	"github.com/afreidah/kafka-rest-proxy/internal/server"
	"github.com/afreidah/kafka-rest-proxy/internal/telemetry"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		runVersion()
		return
	}
	runServe()
}

func runServe() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// --- Initialize structured logger ---
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// --- Load configuration ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// --- Initialize tracing ---
	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.Tracing)
	if err != nil {
		slog.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}

	// --- Set build info metric ---
	telemetry.BuildInfo.WithLabelValues(telemetry.Version, runtime.Version()).Set(1)

	// --- Build the broker client factory ---
	factory, err := kafka.NewFactory(cfg.Broker)
	if err != nil {
		slog.Error("Invalid broker configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Broker client factory ready",
		"seed_brokers", cfg.Broker.SeedBrokers,
		"client_id", cfg.Broker.ClientID,
	)

	// --- Build the client cache and its cleanup timer ---
	// The timer callback closes over the cache variable; the timer is only
	// armed by cache operations, so the cache is always set before it fires.
	var cache *kafka.ClientCache
	var timer *kafka.CleanupTimer
	timer = kafka.NewCleanupTimer(func() {
		sweepCtx, cancel := context.WithTimeout(audit.SweepContext(context.Background()), cfg.Server.RequestTimeout)
		defer cancel()
		cache.CleanStaleClients(sweepCtx)
		if cache.Size() > 0 {
			timer.Rearm(cfg.Cache.KeepAlive)
		}
	})
	cache = kafka.NewClientCache(&kafka.ClientCacheConfig{
		MaxClients:   cfg.Cache.MaxClients,
		KeepAlive:    cfg.Cache.KeepAlive,
		CleanupDelay: cfg.Cache.CleanupDelay,
		Timer:        timer,
		NewClient:    factory.Make,
	})
	slog.Info("Client cache ready",
		"max_clients", cfg.Cache.MaxClients,
		"keep_alive", cfg.Cache.KeepAlive,
		"cleanup_delay", cfg.Cache.CleanupDelay,
	)

	// --- Start background services with lifecycle manager ---
	sm := lifecycle.NewManager()
	sm.Register("cache-metrics", &cacheMetricsService{cache: cache})

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	bgDone := make(chan struct{})
	go func() {
		sm.Run(bgCtx)
		close(bgDone)
	}()

	// --- Create server ---
	srv := &server.Server{
		Cache:          cache,
		Anonymous:      factory.Anonymous(),
		RequestTimeout: cfg.Server.RequestTimeout,
	}

	// --- Setup HTTP mux ---
	mux := http.NewServeMux()

	// Metrics endpoint
	if cfg.Telemetry.Metrics.Enabled {
		mux.Handle(cfg.Telemetry.Metrics.Path, promhttp.Handler())
		slog.Info("Metrics endpoint enabled", "path", cfg.Telemetry.Metrics.Path)
	}

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Proxy handler (all other paths), optionally rate-limited
	var rl *server.RateLimiter
	var proxyHandler http.Handler = srv
	if cfg.RateLimit.Enabled {
		rl = server.NewRateLimiter(cfg.RateLimit)
		proxyHandler = rl.Middleware(srv)
		slog.Info("Rate limiting enabled",
			"requests_per_sec", cfg.RateLimit.RequestsPerSec,
			"burst", cfg.RateLimit.Burst,
		)
	}
	mux.Handle("/", proxyHandler)

	httpServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      mux,
		ReadTimeout:  time.Minute,
		WriteTimeout: time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// --- Configure TLS if cert and key are provided ---
	if cfg.Server.TLS.CertFile != "" {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: parseTLSVersion(cfg.Server.TLS.MinVersion),
		}
	}

	// --- Handle graceful shutdown ---
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		slog.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Drain inflight HTTP requests first so clients get responses quickly
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}

		// Stop rate limiter cleanup goroutine
		if rl != nil {
			rl.Close()
		}

		// Stop background services and wait for them to finish
		bgCancel()
		<-bgDone
		sm.Stop(10 * time.Second)

		// Disarm the cleanup timer, then drain the cache. Stop blocks until
		// every cached and pending broker client has flushed and closed.
		timer.Stop()
		cache.Stop(audit.SweepContext(shutdownCtx))

		// Flush traces
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("Tracer shutdown error", "error", err)
		}
	}()

	// --- Log startup info ---
	slog.Info("Kafka REST proxy starting",
		"version", telemetry.Version,
		"listen_addr", cfg.Server.ListenAddr,
		"seed_brokers", cfg.Broker.SeedBrokers,
		"max_clients", cfg.Cache.MaxClients,
	)

	if cfg.Telemetry.Tracing.Enabled {
		slog.Info("Tracing enabled",
			"endpoint", cfg.Telemetry.Tracing.Endpoint,
			"sample_rate", cfg.Telemetry.Tracing.SampleRate,
			"insecure", cfg.Telemetry.Tracing.Insecure,
		)
	}

	if cfg.Server.TLS.CertFile != "" {
		slog.Info("TLS enabled",
			"cert_file", cfg.Server.TLS.CertFile,
			"min_version", cfg.Server.TLS.MinVersion,
		)
	}

	// --- Start server ---
	if httpServer.TLSConfig != nil {
		err = httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	// Wait for shutdown goroutine to finish cleanup
	<-shutdownDone

	slog.Info("Server stopped")
}

// parseTLSVersion maps a config string to a tls.VersionTLS constant.
func parseTLSVersion(v string) uint16 {
	switch v {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
