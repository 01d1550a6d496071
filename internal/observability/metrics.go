// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RunMetrics records the lifecycle of supervised runs.
type RunMetrics struct {
	started  metric.Int64Counter
	finished metric.Int64Counter
	active   metric.Int64UpDownCounter
	duration metric.Float64Histogram
}

// NewRunMetrics creates the run instruments on meter. A nil meter uses the
// global provider.
func NewRunMetrics(meter metric.Meter) (*RunMetrics, error) {
	if meter == nil {
		meter = otel.Meter("runplane/supervisor")
	}

	started, err := meter.Int64Counter("runplane.runs.started",
		metric.WithDescription("Runs accepted by the supervisor"))
	if err != nil {
		return nil, fmt.Errorf("failed to create started counter: %w", err)
	}
	finished, err := meter.Int64Counter("runplane.runs.finished",
		metric.WithDescription("Runs settled, by termination reason"))
	if err != nil {
		return nil, fmt.Errorf("failed to create finished counter: %w", err)
	}
	active, err := meter.Int64UpDownCounter("runplane.runs.active",
		metric.WithDescription("Runs currently owned by the supervisor"))
	if err != nil {
		return nil, fmt.Errorf("failed to create active gauge: %w", err)
	}
	duration, err := meter.Float64Histogram("runplane.run.duration",
		metric.WithDescription("Run duration from spawn to settlement"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &RunMetrics{
		started:  started,
		finished: finished,
		active:   active,
		duration: duration,
	}, nil
}

// RunStarted counts a run whose transport was constructed.
func (m *RunMetrics) RunStarted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.started.Add(ctx, 1, attrs)
	m.active.Add(ctx, 1, attrs)
}

// RunFinished records a settled run. wasActive is false for runs that never
// got a transport.
func (m *RunMetrics) RunFinished(ctx context.Context, mode, reason string, d time.Duration, wasActive bool) {
	if m == nil {
		return
	}
	m.finished.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("reason", reason),
	))
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("reason", reason)))
	if wasActive {
		m.active.Add(ctx, -1, metric.WithAttributes(attribute.String("mode", mode)))
	}
}
