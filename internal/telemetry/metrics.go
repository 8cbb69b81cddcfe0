package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "roost"

// InitMetrics installs an OTLP meter provider exporting every
// MetricsInterval seconds. With metrics disabled the global provider is
// left alone.
func InitMetrics(ctx context.Context, cfg *Config) (func(context.Context) error, error) {
	if !cfg.EnableMetrics {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.OTLPEndpoint == "" {
		return nil, fmt.Errorf("metrics enabled without an OTLP endpoint")
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	interval := time.Duration(cfg.MetricsInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}

// CommandMetrics counts and times CLI commands
type CommandMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

var (
	commandMetricsOnce sync.Once
	commandMetrics     *CommandMetrics
	commandMetricsErr  error
)

// NewCommandMetrics creates the instruments on provider
func NewCommandMetrics(provider metric.MeterProvider) (*CommandMetrics, error) {
	meter := provider.Meter(meterName)
	runs, err := meter.Int64Counter("roost.cli.commands",
		metric.WithDescription("CLI command executions"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("roost.cli.command.duration",
		metric.WithDescription("CLI command duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &CommandMetrics{runs: runs, duration: duration}, nil
}

// Commands returns instruments on the global meter provider. Call after
// InitMetrics so they bind to the exporting provider.
func Commands() (*CommandMetrics, error) {
	commandMetricsOnce.Do(func() {
		commandMetrics, commandMetricsErr = NewCommandMetrics(otel.GetMeterProvider())
	})
	return commandMetrics, commandMetricsErr
}

// Record adds one execution of command
func (m *CommandMetrics) Record(ctx context.Context, command string, err error, took time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("command", command),
		attribute.String("status", status),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, took.Seconds(), attrs)
}
