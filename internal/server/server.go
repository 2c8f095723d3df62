// -------------------------------------------------------------------------------
// HTTP Server - REST to Broker Protocol Translation
//
// Author: Alex Freidah
//
// HTTP server and request router for the REST produce API. Resolves the
// caller identity from HTTP Basic credentials, fetches the caller's broker
// client from the client cache, and translates JSON record payloads into
// broker produce requests. Topic listing is served through the same cached
// client so it carries the caller's authorization.
// -------------------------------------------------------------------------------

package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/afreidah/kafka-rest-proxy/internal/audit"
	"github.com/afreidah/kafka-rest-proxy/internal/auth"
	"github.com/afreidah/kafka-rest-proxy/internal/kafka"
	"github.com/afreidah/kafka-rest-proxy/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// maxProduceBody caps the JSON payload of a single produce request.
const maxProduceBody = 8 << 20 // 8 MiB

// -------------------------------------------------------------------------
// SERVER
// -------------------------------------------------------------------------

// Server handles HTTP requests and routes them to per-identity broker
// clients fetched from the cache.
type Server struct {
	Cache          *kafka.ClientCache
	Anonymous      auth.Credentials // identity used when a request carries no credentials
	RequestTimeout time.Duration    // per-request deadline for broker calls
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// --- Generate or adopt request ID ---
	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = audit.NewID()
	}
	ctx := audit.WithRequestID(r.Context(), requestID)
	w.Header().Set("X-Request-Id", requestID)

	// --- Track inflight requests ---
	telemetry.InflightRequests.Inc()
	defer telemetry.InflightRequests.Dec()

	// --- Resolve caller identity ---
	creds, method, err := auth.FromRequest(r)
	if err != nil {
		s.recordRequest("Authenticate", http.StatusUnauthorized, start)
		audit.Log(ctx, "proxy.AuthFailure",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
			slog.Int("status", http.StatusUnauthorized),
		)
		w.Header().Set("WWW-Authenticate", `Basic realm="kafka-rest-proxy"`)
		writeProxyError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if method == auth.MethodNone {
		creds = s.Anonymous
	}

	// --- Parse path ---
	topic, ok := parsePath(r.URL.Path)
	if !ok {
		s.recordRequest("InvalidPath", http.StatusNotFound, start)
		writeProxyError(w, http.StatusNotFound, "Not found")
		return
	}

	// --- Start tracing span ---
	spanAttrs := append(telemetry.RequestAttributes(r.Method, r.URL.Path, creds.Name, r.RemoteAddr),
		telemetry.AttrAuthMethod.String(method.String()),
		telemetry.AttrRequestID.String(requestID),
	)
	if topic != "" {
		spanAttrs = append(spanAttrs, telemetry.AttrTopic.String(topic))
	}
	ctx, span := telemetry.StartSpan(ctx, fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path), spanAttrs...)
	defer span.End()

	// --- Route by method and path shape ---
	var status int
	var operation string
	var herr error

	switch {
	case topic == "" && r.Method == http.MethodGet:
		operation = "ListTopics"
		status, herr = s.handleListTopics(ctx, w, creds, method)
	case topic != "" && r.Method == http.MethodPost:
		operation = "Produce"
		status, herr = s.handleProduce(ctx, w, r, creds, method, topic)
	default:
		operation = "MethodNotAllowed"
		status = http.StatusMethodNotAllowed
		writeProxyError(w, status, "Method not supported")
		span.SetStatus(codes.Error, "method not allowed")
	}

	// --- Record metrics ---
	s.recordRequest(operation, status, start)

	// --- Update span status ---
	if herr != nil {
		span.SetStatus(codes.Error, herr.Error())
		span.RecordError(herr)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	// --- Audit log ---
	auditAttrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("identity", creds.Name),
		slog.String("auth_method", method.String()),
		slog.String("remote", r.RemoteAddr),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	}
	if topic != "" {
		auditAttrs = append(auditAttrs, slog.String("topic", topic))
	}
	if herr != nil {
		auditAttrs = append(auditAttrs, slog.String("error", herr.Error()))
	}
	audit.Log(ctx, "proxy."+operation, auditAttrs...)
}

// parsePath splits the request path into an optional topic name. Accepts
// "/topics" (empty topic) and "/topics/{topic}".
func parsePath(path string) (topic string, ok bool) {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "/topics" {
		return "", true
	}
	rest, found := strings.CutPrefix(trimmed, "/topics/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}

// recordRequest updates Prometheus metrics for a completed request.
func (s *Server) recordRequest(operation string, status int, start time.Time) {
	telemetry.RequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	telemetry.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// -------------------------------------------------------------------------
// ERROR RESPONSES
// -------------------------------------------------------------------------

// proxyError is the JSON error body returned for failed requests.
type proxyError struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

// writeProxyError writes a JSON error response.
func writeProxyError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(proxyError{ErrorCode: status, Message: message})
}
