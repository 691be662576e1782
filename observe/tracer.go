package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ActionMeta identifies an intercepted action for telemetry purposes.
type ActionMeta struct {
	Name string // Action type name (required)
	Key  string // Derived cache key (empty before derivation or on bypass)
}

// SpanName returns the deterministic span name: action.cache.<name>.
func (m ActionMeta) SpanName() string {
	return "action.cache." + m.Name
}

// Tracer wraps OpenTelemetry tracing with per-interception span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for one interception.
	StartSpan(ctx context.Context, meta ActionMeta) (context.Context, trace.Span)

	// EndSpan records the outcome and error, then ends the span.
	EndSpan(span trace.Span, meta ActionMeta, outcome string, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer over an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts an internal span tagged with the action name.
func (t *tracerImpl) StartSpan(ctx context.Context, meta ActionMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attribute.String("action.name", meta.Name)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan records the key, the outcome and the error status.
func (t *tracerImpl) EndSpan(span trace.Span, meta ActionMeta, outcome string, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("cache.outcome", outcome),
		attribute.Bool("cache.error", err != nil),
	}
	if meta.Key != "" {
		attrs = append(attrs, attribute.String("cache.key", meta.Key))
	}
	span.SetAttributes(attrs...)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a tracer producing non-recording spans.
func NopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
