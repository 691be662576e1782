// Package observe provides observability primitives for cached action
// execution: a structured logger, OpenTelemetry spans and metrics for cache
// lookups, and exporter wiring.
//
// It is a pure instrumentation library. Logging and telemetry are side
// channels and never influence interception results.
package observe
