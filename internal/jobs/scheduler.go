package jobs

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/service"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
)

// reconcileTimeout bounds a single reconciliation run.
const reconcileTimeout = 10 * time.Minute

// Scheduler runs the deprovisioning reconciler on a cron schedule
type Scheduler struct {
	cron       *cron.Cron
	cfg        config.SchedulerConfig
	reconciler service.ReconciliationService
	logger     *logger.Logger
}

func NewScheduler(cfg *config.Configuration, reconciler service.ReconciliationService, logger *logger.Logger) (*Scheduler, error) {
	cronLog := &cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		cfg:        cfg.Scheduler,
		reconciler: reconciler,
		logger:     logger,
	}

	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	if _, err := s.cron.AddFunc(s.cfg.ReconcileCron, s.Reconcile); err != nil {
		s.logger.Errorw("failed to register reconcile job", "schedule", s.cfg.ReconcileCron, "error", err)
		return err
	}
	s.logger.Infow("registered reconcile job", "schedule", s.cfg.ReconcileCron)
	return nil
}

// Reconcile runs one reconciliation pass. Errors are logged; the next tick retries.
func (s *Scheduler) Reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, types.CtxRequestID, types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CRON_RUN))

	start := time.Now()
	result, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Errorw("reconcile job failed", "error", err, "duration", time.Since(start))
		return
	}
	s.logger.WithContext(ctx).Infow("reconcile job completed",
		"executed", result.Executed,
		"failed", result.Failed,
		"rescheduled_batches", result.Rescheduled,
		"duration", time.Since(start))
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("cron scheduler started")
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}

// Entries is the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// RegisterHooks ties the scheduler to the fx lifecycle when it is enabled.
func RegisterHooks(lc fx.Lifecycle, s *Scheduler) {
	if !s.cfg.Enabled {
		s.logger.Info("cron scheduler disabled by configuration")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger *logger.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
