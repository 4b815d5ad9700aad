package service

import (
	"context"
	"errors"

	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/sentry"
	"github.com/flexprice/deprovisioner/internal/temporal/client"
	temporalInterceptor "github.com/flexprice/deprovisioner/internal/temporal/interceptor"
	"github.com/flexprice/deprovisioner/internal/temporal/models"
	"github.com/flexprice/deprovisioner/internal/temporal/queries"
	"github.com/flexprice/deprovisioner/internal/temporal/worker"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	sdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	sdkworker "go.temporal.io/sdk/worker"
)

// TemporalService is the single entry point the rest of the system uses to
// talk to Temporal.
type TemporalService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsHealthy(ctx context.Context) bool

	RegisterWorkflow(taskQueue types.TemporalTaskQueue, workflow interface{}) error
	RegisterActivity(taskQueue types.TemporalTaskQueue, activity interface{}) error
	StartWorker(taskQueue types.TemporalTaskQueue) error
	StopAllWorkers() error

	// StartDeprovisioning starts the workflow of one batch. Starting a batch
	// that already has a workflow is not an error.
	StartDeprovisioning(ctx context.Context, input models.DeprovisioningWorkflowInput) (*models.WorkflowRun, error)
	// CancelDeprovisioning signals the workflows of batchIDs, or every running
	// deprovisioning workflow of the organization when batchIDs is empty.
	// It returns how many workflows were signaled.
	CancelDeprovisioning(ctx context.Context, organizationID string, batchIDs []string, status types.QueueStatus) (int, error)
	GetDeprovisioningProgress(ctx context.Context, organizationID, batchID string) (*models.DeprovisioningWorkflowResult, error)
	ListRunningDeprovisioningWorkflows(ctx context.Context, organizationID string) ([]*queries.WorkflowExecutionInfo, error)

	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
}

type temporalService struct {
	client        client.TemporalClient
	workerManager worker.TemporalWorkerManager
	schedule      models.DeprovisioningSchedule
	logger        *logger.Logger
	sentry        *sentry.Service
}

func NewTemporalService(
	cfg *config.Configuration,
	client client.TemporalClient,
	workerManager worker.TemporalWorkerManager,
	logger *logger.Logger,
	sentryService *sentry.Service,
) TemporalService {
	return &temporalService{
		client:        client,
		workerManager: workerManager,
		schedule: models.DeprovisioningSchedule{
			ReminderAfter:     cfg.Deprovisioning.ReminderAfter,
			FinalWarningAfter: cfg.Deprovisioning.FinalWarningAfter,
			ExecutionAfter:    cfg.Deprovisioning.ExecutionAfter,
		}.WithDefaults(),
		logger: logger,
		sentry: sentryService,
	}
}

func (s *temporalService) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("temporal service started")
	return nil
}

func (s *temporalService) Stop(ctx context.Context) error {
	if err := s.workerManager.StopAllWorkers(); err != nil {
		s.logger.Errorw("failed to stop temporal workers", "error", err)
	}
	if err := s.client.Stop(ctx); err != nil {
		return err
	}
	s.logger.Info("temporal service stopped")
	return nil
}

func (s *temporalService) IsHealthy(ctx context.Context) bool {
	return s.client.IsHealthy(ctx)
}

func (s *temporalService) RegisterWorkflow(taskQueue types.TemporalTaskQueue, workflow interface{}) error {
	if workflow == nil {
		return ierr.NewError("workflow is required").
			WithHint("Workflow parameter cannot be nil").
			Mark(ierr.ErrValidation)
	}
	w, err := s.worker(taskQueue)
	if err != nil {
		return err
	}
	w.RegisterWorkflow(workflow)
	return nil
}

func (s *temporalService) RegisterActivity(taskQueue types.TemporalTaskQueue, activity interface{}) error {
	if activity == nil {
		return ierr.NewError("activity is required").
			WithHint("Activity parameter cannot be nil").
			Mark(ierr.ErrValidation)
	}
	w, err := s.worker(taskQueue)
	if err != nil {
		return err
	}
	w.RegisterActivity(activity)
	return nil
}

func (s *temporalService) worker(taskQueue types.TemporalTaskQueue) (sdkworker.Worker, error) {
	if err := taskQueue.Validate(); err != nil {
		return nil, err
	}

	options := worker.DefaultOptions()
	if s.sentry.IsEnabled() {
		options.Interceptors = []interceptor.WorkerInterceptor{
			temporalInterceptor.NewSentryInterceptor(s.sentry),
		}
	}

	w, err := s.workerManager.GetOrCreateWorker(taskQueue, options)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create or get worker for task queue").
			Mark(ierr.ErrInternal)
	}
	return w, nil
}

func (s *temporalService) StartWorker(taskQueue types.TemporalTaskQueue) error {
	if err := taskQueue.Validate(); err != nil {
		return err
	}
	return s.workerManager.StartWorker(taskQueue)
}

func (s *temporalService) StopAllWorkers() error {
	return s.workerManager.StopAllWorkers()
}

func (s *temporalService) StartDeprovisioning(ctx context.Context, input models.DeprovisioningWorkflowInput) (*models.WorkflowRun, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	sdk, err := s.sdkClient()
	if err != nil {
		return nil, err
	}

	if input.Schedule == (models.DeprovisioningSchedule{}) {
		input.Schedule = s.schedule
	}

	workflowType := types.TemporalDeprovisioningWorkflow
	workflowID := input.WorkflowID()
	options := sdkclient.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                workflowType.TaskQueueName(),
		WorkflowIDReusePolicy:                    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	run, err := sdk.ExecuteWorkflow(ctx, options, workflowType.String(), input)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			s.logger.WithContext(ctx).Infow("deprovisioning workflow already exists",
				"workflow_id", workflowID,
				"organization_id", input.OrganizationID,
				"batch_id", input.BatchID)
			return &models.WorkflowRun{
				WorkflowID:     workflowID,
				RunID:          alreadyStarted.RunId,
				AlreadyStarted: true,
			}, nil
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to start deprovisioning workflow").
			WithReportableDetails(map[string]interface{}{
				"workflow_id":     workflowID,
				"organization_id": input.OrganizationID,
				"batch_id":        input.BatchID,
			}).
			Mark(ierr.ErrSystem)
	}

	s.logger.WithContext(ctx).Infow("started deprovisioning workflow",
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
		"organization_id", input.OrganizationID,
		"batch_id", input.BatchID,
		"entries", len(input.QueueEntryIDs))

	return &models.WorkflowRun{
		WorkflowID: run.GetID(),
		RunID:      run.GetRunID(),
	}, nil
}

func (s *temporalService) CancelDeprovisioning(ctx context.Context, organizationID string, batchIDs []string, status types.QueueStatus) (int, error) {
	if organizationID == "" {
		return 0, ierr.NewError("organization_id is required").
			WithHint("Organization ID is required to cancel deprovisioning").
			Mark(ierr.ErrValidation)
	}

	workflowIDs := lo.Map(lo.Uniq(lo.Compact(batchIDs)), func(batchID string, _ int) string {
		input := models.DeprovisioningWorkflowInput{OrganizationID: organizationID, BatchID: batchID}
		return input.WorkflowID()
	})
	if len(workflowIDs) == 0 {
		running, err := s.ListRunningDeprovisioningWorkflows(ctx, organizationID)
		if err != nil {
			return 0, err
		}
		workflowIDs = lo.Map(running, func(w *queries.WorkflowExecutionInfo, _ int) string { return w.WorkflowID })
	}

	signal := models.CancelDeprovisioningSignal{OrganizationID: organizationID, Status: status}
	signaled := 0
	var errs []error
	for _, workflowID := range workflowIDs {
		err := s.SignalWorkflow(ctx, workflowID, "", types.SignalCancelDeprovisioning, signal)
		if err != nil {
			if isWorkflowNotFound(err) {
				s.logger.WithContext(ctx).Debugw("deprovisioning workflow already closed", "workflow_id", workflowID)
				continue
			}
			errs = append(errs, err)
			continue
		}
		signaled++
	}

	if len(errs) > 0 {
		return signaled, ierr.WithError(errors.Join(errs...)).
			WithHintf("Failed to signal %d deprovisioning workflows", len(errs)).
			WithReportableDetails(map[string]interface{}{
				"organization_id": organizationID,
			}).
			Mark(ierr.ErrSystem)
	}
	return signaled, nil
}

func (s *temporalService) GetDeprovisioningProgress(ctx context.Context, organizationID, batchID string) (*models.DeprovisioningWorkflowResult, error) {
	input := models.DeprovisioningWorkflowInput{OrganizationID: organizationID, BatchID: batchID}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	sdk, err := s.sdkClient()
	if err != nil {
		return nil, err
	}

	value, err := sdk.QueryWorkflow(ctx, input.WorkflowID(), "", types.QueryDeprovisioningProgress)
	if err != nil {
		if isWorkflowNotFound(err) {
			return nil, ierr.WithError(err).
				WithHintf("No deprovisioning workflow for batch %s", batchID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to query deprovisioning workflow").
			Mark(ierr.ErrSystem)
	}

	var result models.DeprovisioningWorkflowResult
	if err := value.Get(&result); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to decode deprovisioning progress").
			Mark(ierr.ErrInternal)
	}
	return &result, nil
}

func (s *temporalService) ListRunningDeprovisioningWorkflows(ctx context.Context, organizationID string) ([]*queries.WorkflowExecutionInfo, error) {
	sdk, err := s.sdkClient()
	if err != nil {
		return nil, err
	}
	return queries.NewWorkflowQuerier(sdk, s.logger).ListRunningDeprovisioningWorkflows(ctx, organizationID)
}

func (s *temporalService) SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error {
	if workflowID == "" {
		return ierr.NewError("workflow ID is required").
			WithHint("Workflow ID cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if signalName == "" {
		return ierr.NewError("signal name is required").
			WithHint("Signal name cannot be empty").
			Mark(ierr.ErrValidation)
	}
	sdk, err := s.sdkClient()
	if err != nil {
		return err
	}
	return sdk.SignalWorkflow(ctx, workflowID, runID, signalName, arg)
}

func (s *temporalService) sdkClient() (sdkclient.Client, error) {
	sdk := s.client.Client()
	if sdk == nil {
		return nil, ierr.NewError("temporal service not initialized").
			WithHint("Temporal service must be started before use").
			Mark(ierr.ErrInternal)
	}
	return sdk, nil
}

func isWorkflowNotFound(err error) bool {
	var notFound *serviceerror.NotFound
	return errors.As(err, &notFound)
}
