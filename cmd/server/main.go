package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/deprovisioner/internal/api"
	"github.com/flexprice/deprovisioner/internal/api/cron"
	v1 "github.com/flexprice/deprovisioner/internal/api/v1"
	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/email"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/jobs"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/metrics"
	"github.com/flexprice/deprovisioner/internal/plans"
	"github.com/flexprice/deprovisioner/internal/postgres"
	"github.com/flexprice/deprovisioner/internal/pubsub"
	"github.com/flexprice/deprovisioner/internal/pubsub/kafka"
	"github.com/flexprice/deprovisioner/internal/pubsub/memory"
	pubsubRouter "github.com/flexprice/deprovisioner/internal/pubsub/router"
	repo "github.com/flexprice/deprovisioner/internal/repository/postgres"
	"github.com/flexprice/deprovisioner/internal/sentry"
	"github.com/flexprice/deprovisioner/internal/service"
	activities "github.com/flexprice/deprovisioner/internal/temporal/activities/deprovisioning"
	temporalClient "github.com/flexprice/deprovisioner/internal/temporal/client"
	temporalService "github.com/flexprice/deprovisioner/internal/temporal/service"
	temporalWorker "github.com/flexprice/deprovisioner/internal/temporal/worker"
	"github.com/flexprice/deprovisioner/internal/temporal/workflows"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,
			sentry.NewSentryService,
			metrics.NewProvider,
			metrics.New,

			// postgres
			postgres.NewDB,
			postgres.NewClient,
			func(c *postgres.Client) postgres.IClient { return c },
			repo.NewMembershipRepository,
			repo.NewDeprovisioningQueueRepository,

			// collaborators
			plans.NewLimitSource,
			plans.NewLookup,
			email.NewEmailClient,
			email.NewEmail,
			email.NewDispatcher,
			providePubSub,
			func(ps pubsub.PubSub) message.Publisher { return ps },
			events.NewPublisher,
			types.SystemClock,
			service.NewServiceParams,

			// services
			service.NewMemberSelectionService,
			service.NewDeprovisioningQueueService,
			service.NewNotificationService,
			service.NewExecutionService,
			service.NewSubscriptionChangeService,
			service.NewBannerService,
			service.NewReconciliationService,
			service.NewEventConsumptionService,

			// temporal
			temporalClient.NewTemporalClient,
			temporalWorker.NewTemporalWorkerManager,
			temporalService.NewTemporalService,
			func(t temporalService.TemporalService) service.DeprovisioningWorkflows { return t },
			func(t temporalService.TemporalService) v1.ProgressReader { return t },
			activities.NewDeprovisioningActivities,

			// api
			v1.NewDeprovisioningHandler,
			v1.NewBillingHandler,
			cron.NewDeprovisioningCronHandler,
			provideHandlers,
			api.NewRouter,

			pubsubRouter.NewRouter,
			jobs.NewScheduler,
		),
		fx.Invoke(
			sentry.RegisterHooks,
			startPyroscope,
			startTemporal,
			startServer,
		),
	)
	app.Run()
}

func providePubSub(cfg *config.Configuration, log *logger.Logger) (pubsub.PubSub, error) {
	if cfg.PubSub.Type == types.PubSubTypeKafka {
		return kafka.NewPubSub(cfg, log)
	}
	return memory.NewPubSub(log), nil
}

func provideHandlers(
	deprovisioning *v1.DeprovisioningHandler,
	billing *v1.BillingHandler,
	cronJobs *cron.DeprovisioningCronHandler,
) api.Handlers {
	return api.Handlers{
		Deprovisioning: deprovisioning,
		Billing:        billing,
		CronJobs:       cronJobs,
	}
}

func startPyroscope(lc fx.Lifecycle, cfg *config.Configuration, log *logger.Logger) error {
	if !cfg.Pyroscope.Enabled {
		return nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.Pyroscope.AppName,
		ServerAddress:   cfg.Pyroscope.ServerAddress,
		Logger:          log,
		Tags:            map[string]string{"mode": string(cfg.Deployment.Mode)},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return profiler.Stop()
		},
	})
	return nil
}

// startTemporal connects the client in every mode and runs the worker in the
// modes that execute workflows.
func startTemporal(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	temporal temporalService.TemporalService,
	acts *activities.DeprovisioningActivities,
	log *logger.Logger,
) {
	runWorker := cfg.Deployment.Mode == types.ModeLocal || cfg.Deployment.Mode == types.ModeTemporalWorker

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := temporal.Start(ctx); err != nil {
				return err
			}
			if !runWorker {
				return nil
			}

			queue := types.TemporalTaskQueueDeprovisioning
			if err := temporal.RegisterWorkflow(queue, workflows.DeprovisioningWorkflow); err != nil {
				return err
			}
			if err := temporal.RegisterActivity(queue, acts); err != nil {
				return err
			}
			if err := temporal.StartWorker(queue); err != nil {
				return err
			}
			log.Infow("temporal worker started", "task_queue", queue)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if runWorker {
				if err := temporal.StopAllWorkers(); err != nil {
					log.Errorw("failed to stop temporal workers", "error", err)
				}
			}
			return temporal.Stop(ctx)
		},
	})
}

// startServer runs the surfaces of the configured deployment mode.
func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	engine *gin.Engine,
	router *pubsubRouter.Router,
	consumers service.EventConsumptionService,
	ps pubsub.PubSub,
	scheduler *jobs.Scheduler,
	log *logger.Logger,
) {
	mode := cfg.Deployment.Mode
	log.Infow("starting deprovisioner", "mode", mode)

	switch mode {
	case types.ModeLocal:
		startAPIServer(lc, cfg, engine, log)
		startConsumer(lc, router, consumers, ps, log)
		jobs.RegisterHooks(lc, scheduler)
	case types.ModeAPI:
		startAPIServer(lc, cfg, engine, log)
		jobs.RegisterHooks(lc, scheduler)
	case types.ModeConsumer:
		startConsumer(lc, router, consumers, ps, log)
	case types.ModeTemporalWorker:
		// the worker is started with the temporal client
	default:
		log.Fatalf("unknown deployment mode: %s", mode)
	}
}

func startAPIServer(lc fx.Lifecycle, cfg *config.Configuration, engine *gin.Engine, log *logger.Logger) {
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("failed to start API server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down API server")
			return srv.Shutdown(ctx)
		},
	})
}

func startConsumer(
	lc fx.Lifecycle,
	router *pubsubRouter.Router,
	consumers service.EventConsumptionService,
	subscriber pubsub.PubSub,
	log *logger.Logger,
) {
	consumers.RegisterHandlers(router, subscriber)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					log.Errorw("event router stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down event router")
			if err := router.Close(); err != nil {
				return err
			}
			return subscriber.Close()
		},
	})
}
