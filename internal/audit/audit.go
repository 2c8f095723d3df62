// -------------------------------------------------------------------------------
// Audit - Request ID Tracing and Structured Audit Logging
//
// Author: Alex Freidah
//
// Context-based request ID propagation and structured audit logging for the
// REST proxy. Generates unique request IDs (honoring client-provided
// X-Request-Id) and correlation IDs for background sweeps. Emits structured
// slog entries with an "audit" marker for log pipeline filtering.
// -------------------------------------------------------------------------------

package audit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/afreidah/kafka-rest-proxy/internal/telemetry"
)

// -------------------------------------------------------------------------
// CONTEXT KEYS
// -------------------------------------------------------------------------

type contextKey int

const (
	requestIDKey contextKey = iota
)

// -------------------------------------------------------------------------
// REQUEST ID
// -------------------------------------------------------------------------

// NewID generates a hex-encoded 16-byte random ID suitable for request
// correlation. Falls back to a timestamp-based ID if crypto/rand fails.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Fallback: should never happen with a healthy OS
		return hex.EncodeToString([]byte(time.Now().Format("20060102150405.000000000")))
	}
	return hex.EncodeToString(b)
}

// WithRequestID stores a request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from the context. Returns empty string
// if no request ID is set.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// SweepContext returns a context carrying a fresh correlation ID for one
// background sweep run, so every teardown logged by that run shares an ID
// the way request-scoped log lines share theirs.
func SweepContext(ctx context.Context) context.Context {
	return WithRequestID(ctx, NewID())
}

// -------------------------------------------------------------------------
// AUDIT LOGGING
// -------------------------------------------------------------------------

// Log emits a structured audit log entry at Info level. Automatically
// includes the request ID from context and increments the audit event
// counter.
func Log(ctx context.Context, event string, attrs ...slog.Attr) {
	telemetry.AuditEventsTotal.WithLabelValues(event).Inc()

	base := []slog.Attr{
		slog.Bool("audit", true),
		slog.String("event", event),
	}

	if id := RequestID(ctx); id != "" {
		base = append(base, slog.String("request_id", id))
	}

	base = append(base, attrs...)

	slog.LogAttrs(ctx, slog.LevelInfo, "audit", base...)
}
