package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels attached to recorded metrics.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	// OutcomeRejected marks invocations that failed validation before
	// any network call was made.
	OutcomeRejected = "rejected"
)

// CustomMetrics records the application-level metrics of the registry.
// Callers hold this interface instead of checking whether telemetry is
// enabled: the no-op implementation simply discards everything.
type CustomMetrics interface {
	// RecordToolInvocation records one tool invocation attempt against a
	// capability server and its duration.
	RecordToolInvocation(ctx context.Context, serverID, toolName, outcome string, duration time.Duration)

	// RecordSchemaFetch records one schema fetch for a capability server.
	RecordSchemaFetch(ctx context.Context, serverID, outcome string, duration time.Duration)
}

type noopCustomMetrics struct{}

// NewNoopCustomMetrics returns a CustomMetrics that records nothing.
func NewNoopCustomMetrics() CustomMetrics {
	return &noopCustomMetrics{}
}

func (n *noopCustomMetrics) RecordToolInvocation(context.Context, string, string, string, time.Duration) {
}

func (n *noopCustomMetrics) RecordSchemaFetch(context.Context, string, string, time.Duration) {}

type otelCustomMetrics struct {
	invocationCount    metric.Int64Counter
	invocationDuration metric.Float64Histogram
	schemaFetchCount   metric.Int64Counter
	schemaFetchLatency metric.Float64Histogram
}

// NewOtelCustomMetrics creates the real CustomMetrics backed by the given meter.
func NewOtelCustomMetrics(meter metric.Meter) (CustomMetrics, error) {
	invocationCount, err := meter.Int64Counter(
		"toolgate.tool.invocations",
		metric.WithDescription("Number of tool invocations, by server, tool and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation counter: %w", err)
	}
	invocationDuration, err := meter.Float64Histogram(
		"toolgate.tool.invocation.duration",
		metric.WithDescription("Duration of tool invocations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation duration histogram: %w", err)
	}
	schemaFetchCount, err := meter.Int64Counter(
		"toolgate.schema.fetches",
		metric.WithDescription("Number of schema fetches, by server and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema fetch counter: %w", err)
	}
	schemaFetchLatency, err := meter.Float64Histogram(
		"toolgate.schema.fetch.duration",
		metric.WithDescription("Duration of schema fetches"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema fetch duration histogram: %w", err)
	}
	return &otelCustomMetrics{
		invocationCount:    invocationCount,
		invocationDuration: invocationDuration,
		schemaFetchCount:   schemaFetchCount,
		schemaFetchLatency: schemaFetchLatency,
	}, nil
}

func (m *otelCustomMetrics) RecordToolInvocation(ctx context.Context, serverID, toolName, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("server", serverID),
		attribute.String("tool", toolName),
		attribute.String("outcome", outcome),
	)
	m.invocationCount.Add(ctx, 1, attrs)
	m.invocationDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *otelCustomMetrics) RecordSchemaFetch(ctx context.Context, serverID, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("server", serverID),
		attribute.String("outcome", outcome),
	)
	m.schemaFetchCount.Add(ctx, 1, attrs)
	m.schemaFetchLatency.Record(ctx, duration.Seconds(), attrs)
}
