package metrics

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
)

// Metrics holds the deprovisioning instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	queued             metric.Int64Counter
	notifications      metric.Int64Counter
	executions         metric.Int64Counter
	cancellations      metric.Int64Counter
	manualIntervention metric.Int64Counter
}

// NewProvider registers the meter provider. Disabled metrics get a noop provider.
func NewProvider(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) (metric.MeterProvider, error) {
	if !cfg.Metrics.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := otlpmetricgrpc.New(context.Background(),
		otlpmetricgrpc.WithEndpoint(cfg.Metrics.ExporterEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Infow("metrics initialized", "endpoint", cfg.Metrics.ExporterEndpoint)
	return provider, nil
}

// New creates the instruments on provider.
func New(cfg *config.Configuration, provider metric.MeterProvider) (*Metrics, error) {
	name := cfg.Metrics.ServiceName
	if name == "" {
		name = "deprovisioner"
	}
	meter := provider.Meter(name)

	queued, err := meter.Int64Counter("deprovisioning_queued_total",
		metric.WithDescription("Queue entries created or reactivated"))
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("deprovisioning_notifications_total",
		metric.WithDescription("Admin notifications attempted"))
	if err != nil {
		return nil, err
	}
	executions, err := meter.Int64Counter("deprovisioning_executions_total",
		metric.WithDescription("Deactivation attempts by outcome"))
	if err != nil {
		return nil, err
	}
	cancellations, err := meter.Int64Counter("deprovisioning_cancellations_total",
		metric.WithDescription("Queue entries canceled by reason"))
	if err != nil {
		return nil, err
	}
	manualIntervention, err := meter.Int64Counter("deprovisioning_manual_intervention_total",
		metric.WithDescription("Downgrades that could not be fully resolved automatically"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		queued:             queued,
		notifications:      notifications,
		executions:         executions,
		cancellations:      cancellations,
		manualIntervention: manualIntervention,
	}, nil
}

func (m *Metrics) RecordQueued(ctx context.Context, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.queued.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordNotification(ctx context.Context, template string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "sent"
	if !delivered {
		outcome = "failed"
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordExecution(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.executions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordCancellation(ctx context.Context, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cancellations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordManualIntervention(ctx context.Context) {
	if m == nil {
		return
	}
	m.manualIntervention.Add(ctx, 1)
}
