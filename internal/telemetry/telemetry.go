// Package telemetry wires up the OpenTelemetry metric pipeline and exposes
// the custom metrics recorded by the registry and dispatcher.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config controls telemetry initialization.
type Config struct {
	ServiceName string
	Enabled     bool
}

// Providers holds the initialized OpenTelemetry providers.
// When telemetry is disabled, Init still returns a usable Providers value
// whose Meter records nothing.
type Providers struct {
	// Meter is the meter all custom metrics are created from.
	Meter metric.Meter

	serviceName   string
	enabled       bool
	meterProvider *sdkmetric.MeterProvider
}

// Init sets up the metric pipeline. Metrics are exported in Prometheus
// format and served by the API's /metrics endpoint.
func Init(_ context.Context, cfg *Config) (*Providers, error) {
	p := &Providers{
		serviceName: cfg.ServiceName,
		enabled:     cfg.Enabled,
	}
	if !cfg.Enabled {
		p.Meter = otel.Meter(cfg.ServiceName)
		return p, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(p.meterProvider)

	p.Meter = p.meterProvider.Meter(cfg.ServiceName)
	return p, nil
}

// IsEnabled reports whether telemetry was enabled at init time.
func (p *Providers) IsEnabled() bool {
	return p.enabled
}

// ServiceName returns the service name the providers were configured with.
func (p *Providers) ServiceName() string {
	return p.serviceName
}

// Shutdown flushes and stops the metric pipeline.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
