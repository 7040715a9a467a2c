package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span with the given name and attributes
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// TraceIDs returns the trace and span IDs carried by ctx, or empty strings
// when ctx holds no valid span context.
func TraceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

// StartServerSpan creates a new server span (for incoming requests)
func StartServerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// SetSpanError marks the span as errored
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful
func SetSpanOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// Common attribute keys for Pulsar spans
var (
	AttrCacheKey    = attribute.Key("pulsar.cache.key")
	AttrCacheOp     = attribute.Key("pulsar.cache.op")
	AttrCacheHit    = attribute.Key("pulsar.cache.hit")
	AttrCacheSource = attribute.Key("pulsar.cache.source")
	AttrTTLMs       = attribute.Key("pulsar.cache.ttl_ms")
	AttrSwept       = attribute.Key("pulsar.sweep.deleted")
	AttrRequestID   = attribute.Key("pulsar.request_id")
)
