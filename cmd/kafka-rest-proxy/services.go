// -------------------------------------------------------------------------------
// Background Service Definitions
//
// Author: Alex Freidah
//
// Service types for the lifecycle manager. The cache metrics service keeps
// the cache size gauge fresh even when no requests arrive, so dashboards see
// the keep-alive sweep shrinking the cache rather than a stale last-request
// snapshot.
// -------------------------------------------------------------------------------

package main

import (
	"context"
	"time"

	"github.com/afreidah/kafka-rest-proxy/internal/kafka"
	"github.com/afreidah/kafka-rest-proxy/internal/telemetry"
)

// -------------------------------------------------------------------------
// CACHE METRICS
// -------------------------------------------------------------------------

type cacheMetricsService struct {
	cache *kafka.ClientCache
}

func (s *cacheMetricsService) Run(ctx context.Context) error {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			telemetry.CacheSize.Set(float64(s.cache.Size()))
		case <-ctx.Done():
			return nil
		}
	}
}
