package service

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/temporal/client"
	"github.com/flexprice/deprovisioner/internal/temporal/models"
	"github.com/flexprice/deprovisioner/internal/temporal/worker"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	sdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func newTestService(t *testing.T) (TemporalService, *mocks.Client) {
	t.Helper()

	sdk := &mocks.Client{}
	t.Cleanup(func() { sdk.AssertExpectations(t) })

	log := logger.NewNopLogger()
	c := client.NewTemporalClientFrom(sdk, log)
	return NewTemporalService(config.GetDefaultConfig(), c, worker.NewTemporalWorkerManager(c, log), log, nil), sdk
}

func TestStartDeprovisioningUsesBatchWorkflowID(t *testing.T) {
	svc, sdk := newTestService(t)

	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("DeprovisioningWorkflow-org_1-dpb_1")
	run.On("GetRunID").Return("run_1")

	sdk.On("ExecuteWorkflow",
		mock.Anything,
		mock.MatchedBy(func(o sdkclient.StartWorkflowOptions) bool {
			return o.ID == "DeprovisioningWorkflow-org_1-dpb_1" &&
				o.TaskQueue == types.TemporalTaskQueueDeprovisioning.String() &&
				o.WorkflowExecutionErrorWhenAlreadyStarted
		}),
		types.TemporalDeprovisioningWorkflow.String(),
		mock.MatchedBy(func(in models.DeprovisioningWorkflowInput) bool {
			return in.BatchID == "dpb_1" && in.Schedule.ReminderAfter == 7*24*time.Hour
		}),
	).Return(run, nil).Once()

	got, err := svc.StartDeprovisioning(context.Background(), models.DeprovisioningWorkflowInput{
		OrganizationID: "org_1",
		BatchID:        "dpb_1",
		QueueEntryIDs:  []string{"dpq_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "DeprovisioningWorkflow-org_1-dpb_1", got.WorkflowID)
	assert.Equal(t, "run_1", got.RunID)
	assert.False(t, got.AlreadyStarted)
}

func TestStartDeprovisioningAlreadyStartedIsNotAnError(t *testing.T) {
	svc, sdk := newTestService(t)

	sdk.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run_0")).Once()

	got, err := svc.StartDeprovisioning(context.Background(), models.DeprovisioningWorkflowInput{
		OrganizationID: "org_1",
		BatchID:        "dpb_1",
	})
	require.NoError(t, err)
	assert.True(t, got.AlreadyStarted)
	assert.Equal(t, "run_0", got.RunID)
}

func TestStartDeprovisioningRejectsEmptyBatch(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.StartDeprovisioning(context.Background(), models.DeprovisioningWorkflowInput{OrganizationID: "org_1"})
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}

func TestCancelDeprovisioningSkipsClosedWorkflows(t *testing.T) {
	svc, sdk := newTestService(t)

	signal := models.CancelDeprovisioningSignal{OrganizationID: "org_1", Status: types.QueueStatusCanceledUpgrade}
	sdk.On("SignalWorkflow", mock.Anything, "DeprovisioningWorkflow-org_1-dpb_1", "", types.SignalCancelDeprovisioning, signal).
		Return(nil).Once()
	sdk.On("SignalWorkflow", mock.Anything, "DeprovisioningWorkflow-org_1-dpb_2", "", types.SignalCancelDeprovisioning, signal).
		Return(serviceerror.NewNotFound("workflow execution already completed")).Once()

	signaled, err := svc.CancelDeprovisioning(context.Background(), "org_1",
		[]string{"dpb_1", "dpb_2", "dpb_1", ""}, types.QueueStatusCanceledUpgrade)
	require.NoError(t, err)
	assert.Equal(t, 1, signaled)
}

func TestCancelDeprovisioningReportsSignalFailures(t *testing.T) {
	svc, sdk := newTestService(t)

	sdk.On("SignalWorkflow", mock.Anything, mock.Anything, "", types.SignalCancelDeprovisioning, mock.Anything).
		Return(serviceerror.NewUnavailable("frontend unavailable")).Once()

	signaled, err := svc.CancelDeprovisioning(context.Background(), "org_1", []string{"dpb_1"}, types.QueueStatusCanceledUpgrade)
	require.Error(t, err)
	assert.Equal(t, 0, signaled)
}

func TestServiceRequiresStartedClient(t *testing.T) {
	log := logger.NewNopLogger()
	c := client.NewTemporalClient(config.GetDefaultConfig(), log)
	svc := NewTemporalService(config.GetDefaultConfig(), c, worker.NewTemporalWorkerManager(c, log), log, nil)

	err := svc.SignalWorkflow(context.Background(), "wf", "", types.SignalCancelDeprovisioning, nil)
	require.Error(t, err)

	err = svc.RegisterWorkflow(types.TemporalTaskQueueDeprovisioning, func() {})
	require.Error(t, err)
}
