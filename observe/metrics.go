package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records cache interception metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordInterception records one interception with its outcome.
	RecordInterception(ctx context.Context, meta ActionMeta, outcome string, duration time.Duration, err error)
}

type metricsImpl struct {
	lookups      metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates Metrics instruments on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	lookups, err := meter.Int64Counter(
		"action.cache.interceptions",
		metric.WithDescription("Total number of intercepted action executions by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"action.cache.errors",
		metric.WithDescription("Total number of failed interceptions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"action.cache.duration_ms",
		metric.WithDescription("Interception duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		lookups:      lookups,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// RecordInterception records counters and duration for one interception.
func (m *metricsImpl) RecordInterception(ctx context.Context, meta ActionMeta, outcome string, duration time.Duration, err error) {
	opt := metric.WithAttributes(
		attribute.String("action.name", meta.Name),
		attribute.String("cache.outcome", outcome),
	)

	m.lookups.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) RecordInterception(context.Context, ActionMeta, string, time.Duration, error) {}
