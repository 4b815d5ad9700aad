package sentry

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/getsentry/sentry-go"
	"go.uber.org/fx"
)

// Service captures errors and spans when Sentry is enabled. Every method is a
// no-op otherwise, and a nil *Service is disabled.
type Service struct {
	enabled bool
	logger  *logger.Logger
}

func NewSentryService(cfg *config.Configuration, logger *logger.Logger) *Service {
	if !cfg.Sentry.Enabled || cfg.Sentry.DSN == "" {
		return &Service{logger: logger}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.Sentry.DSN,
		Environment:      cfg.Sentry.Environment,
		EnableTracing:    cfg.Sentry.SampleRate > 0,
		TracesSampleRate: cfg.Sentry.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		logger.Errorw("failed to initialize sentry", "error", err)
		return &Service{logger: logger}
	}

	logger.Infow("sentry initialized", "environment", cfg.Sentry.Environment)
	return &Service{enabled: true, logger: logger}
}

// RegisterHooks flushes buffered events on shutdown.
func RegisterHooks(lc fx.Lifecycle, s *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			s.Flush(2 * time.Second)
			return nil
		},
	})
}

func (s *Service) IsEnabled() bool {
	return s != nil && s.enabled
}

// CaptureException reports err with optional tags.
func (s *Service) CaptureException(err error, tags ...map[string]string) {
	if !s.IsEnabled() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for _, t := range tags {
			scope.SetTags(t)
		}
		sentry.CaptureException(err)
	})
}

// StartMonitoringSpan starts a span named operation. The span is nil when
// Sentry is disabled.
func (s *Service) StartMonitoringSpan(ctx context.Context, operation string, data map[string]interface{}) (*sentry.Span, context.Context) {
	if !s.IsEnabled() {
		return nil, ctx
	}
	span := sentry.StartSpan(ctx, operation)
	for k, v := range data {
		span.SetData(k, v)
	}
	return span, span.Context()
}

func (s *Service) Flush(timeout time.Duration) {
	if !s.IsEnabled() {
		return
	}
	sentry.Flush(timeout)
}
