// Package exporters builds the OpenTelemetry exporters selected by name in
// the observe configuration.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrUnknownExporter indicates an exporter name outside the supported set.
	ErrUnknownExporter = errors.New("exporters: unknown exporter")

	// ErrMissingEndpoint indicates a network exporter without an endpoint
	// in the environment.
	ErrMissingEndpoint = errors.New("exporters: endpoint not configured")
)

// Stdout is where the stdout exporters write. Tests may replace it.
var Stdout io.Writer = os.Stdout

// firstEnv returns the first non-empty value among the named variables.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func requireEndpoint(keys ...string) error {
	if firstEnv(keys...) == "" {
		return fmt.Errorf("%w: set one of %v", ErrMissingEndpoint, keys)
	}
	return nil
}

// NewTracingExporter creates a span exporter: stdout, otlp, jaeger or none.
// Jaeger is reached over OTLP.
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(Stdout))
	case "otlp":
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	case "jaeger":
		if err := requireEndpoint("OTEL_EXPORTER_JAEGER_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	case "none", "":
		return stdouttrace.New(stdouttrace.WithWriter(io.Discard))
	default:
		return nil, fmt.Errorf("%w: tracing %q", ErrUnknownExporter, name)
	}
}

// NewMetricsReader creates a metrics reader: stdout, otlp, prometheus or none.
func NewMetricsReader(ctx context.Context, name string) (sdkmetric.Reader, error) {
	var (
		exp sdkmetric.Exporter
		err error
	)
	switch name {
	case "prometheus":
		reader, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		return reader, nil
	case "stdout":
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(Stdout))
	case "otlp":
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err = otlpmetricgrpc.New(ctx)
	case "none", "":
		exp, err = stdoutmetric.New(stdoutmetric.WithWriter(io.Discard))
	default:
		return nil, fmt.Errorf("%w: metrics %q", ErrUnknownExporter, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s metrics exporter: %w", name, err)
	}
	return sdkmetric.NewPeriodicReader(exp), nil
}
