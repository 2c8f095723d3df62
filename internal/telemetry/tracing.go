// -------------------------------------------------------------------------------
// Tracing - OpenTelemetry Setup and Helpers
//
// Author: Alex Freidah
//
// OpenTelemetry tracer initialization and span helpers. When tracing is
// disabled in config, InitTracer installs nothing and returns a no-op
// shutdown, so call sites never need to branch on the setting.
// -------------------------------------------------------------------------------

package telemetry

import (
	"context"
	"fmt"

	"github.com/afreidah/kafka-rest-proxy/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this service's spans.
const tracerName = "kafka-rest-proxy"

// -------------------------------------------------------------------------
// COMMON ATTRIBUTE KEYS
// -------------------------------------------------------------------------

var (
	// AttrIdentity is the caller principal for the request.
	AttrIdentity = attribute.Key("proxy.identity")

	// AttrTopic is the Kafka topic being produced to or described.
	AttrTopic = attribute.Key("proxy.topic")

	// AttrAuthMethod is the authentication method resolved for the request.
	AttrAuthMethod = attribute.Key("proxy.auth_method")

	// AttrRequestID is the correlation ID assigned to the request.
	AttrRequestID = attribute.Key("proxy.request_id")
)

// -------------------------------------------------------------------------
// INITIALIZATION
// -------------------------------------------------------------------------

// InitTracer configures the global OpenTelemetry tracer provider with an OTLP
// gRPC exporter. Returns a shutdown function that flushes pending spans. When
// tracing is disabled, returns a no-op shutdown and installs nothing.
func InitTracer(ctx context.Context, cfg config.TracingConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(tracerName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// -------------------------------------------------------------------------
// SPAN HELPERS
// -------------------------------------------------------------------------

// Tracer returns the tracer for this service. Uses the globally registered
// provider, so it is a no-op tracer when tracing is disabled.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span with the given name and attributes.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// RequestAttributes builds the standard attribute set for an incoming HTTP
// request handled by the proxy.
func RequestAttributes(method, path, identity, remote string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.target", path),
		AttrIdentity.String(identity),
		attribute.String("net.peer.addr", remote),
	}
}
