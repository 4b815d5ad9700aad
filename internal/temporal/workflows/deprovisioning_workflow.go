package workflows

import (
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/notification"
	"github.com/flexprice/deprovisioner/internal/service"
	activities "github.com/flexprice/deprovisioner/internal/temporal/activities/deprovisioning"
	"github.com/flexprice/deprovisioner/internal/temporal/models"
	"github.com/flexprice/deprovisioner/internal/temporal/searchattr"
	"github.com/flexprice/deprovisioner/internal/types"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// Workflow name - must match the function name
	WorkflowDeprovisioning = "DeprovisioningWorkflow"
)

// activity references; only used to resolve registered names
var acts *activities.DeprovisioningActivities

// DeprovisioningWorkflow sequences the notifications and the final
// deactivation for one batch of queue entries:
//
//	day 0   scheduled removal notice, PENDING -> NOTIFIED_ONCE
//	day 7   reminder, NOTIFIED_ONCE -> NOTIFIED_REMINDER
//	day 13  final warning, NOTIFIED_REMINDER -> NOTIFIED_FINAL
//	day 14  deactivation of every due entry, then a completion summary
//
// Every step re-reads the batch, so entries canceled, extended or completed
// elsewhere drop out. A cancel signal for the organization stops the run at
// the next step boundary.
func DeprovisioningWorkflow(ctx workflow.Context, input models.DeprovisioningWorkflowInput) (*models.DeprovisioningWorkflowResult, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    10 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    5 * time.Minute,
			MaximumAttempts:    3,
		},
	})

	r := &deprovisioningRun{
		ctx:      ctx,
		input:    input,
		logger:   log.With(workflow.GetLogger(ctx), "organization_id", input.OrganizationID, "batch_id", input.BatchID),
		cancelCh: workflow.GetSignalChannel(ctx, types.SignalCancelDeprovisioning),
		result: &models.DeprovisioningWorkflowResult{
			OrganizationID: input.OrganizationID,
			BatchID:        input.BatchID,
			Stage:          models.DeprovisioningStageScheduled,
			Notified:       map[string]int{},
		},
	}

	if err := workflow.SetQueryHandler(ctx, types.QueryDeprovisioningProgress, func() (models.DeprovisioningWorkflowResult, error) {
		return *r.result, nil
	}); err != nil {
		return nil, err
	}
	searchattr.UpsertDeprovisioningSearchAttributes(ctx, input.OrganizationID, input.BatchID)

	schedule := input.Schedule.WithDefaults()
	steps := []struct {
		wait  time.Duration
		level types.NotificationLevel
		stage models.DeprovisioningStage
	}{
		{0, types.NotificationLevelScheduled, models.DeprovisioningStageScheduled},
		{schedule.ReminderAfter, types.NotificationLevelReminder, models.DeprovisioningStageReminder},
		{schedule.FinalWarningAfter, types.NotificationLevelFinal, models.DeprovisioningStageFinal},
	}

	for _, step := range steps {
		if !r.sleep(step.wait) {
			return r.canceled(), nil
		}
		r.enter(step.stage)

		remaining, err := r.notify(step.level)
		if err != nil {
			return nil, err
		}
		if remaining == 0 {
			r.logger.Info("No queue entries left in batch, stopping", "stage", step.stage)
			r.result.StoppedEarly = true
			r.enter(models.DeprovisioningStageDone)
			return r.result, nil
		}
	}

	if !r.sleep(schedule.ExecutionAfter) {
		return r.canceled(), nil
	}
	r.enter(models.DeprovisioningStageExecution)
	if err := r.execute(); err != nil {
		return nil, err
	}

	r.enter(models.DeprovisioningStageDone)
	r.logger.Info("Deprovisioning workflow completed",
		"success_count", r.result.SuccessCount,
		"failure_count", r.result.FailureCount,
		"skipped_count", r.result.SkippedCount)
	return r.result, nil
}

type deprovisioningRun struct {
	ctx             workflow.Context
	input           models.DeprovisioningWorkflowInput
	logger          log.Logger
	cancelCh        workflow.ReceiveChannel
	cancelRequested bool
	result          *models.DeprovisioningWorkflowResult
}

func (r *deprovisioningRun) enter(stage models.DeprovisioningStage) {
	r.result.Stage = stage
	searchattr.UpsertStageSearchAttribute(r.ctx, string(stage))
}

func (r *deprovisioningRun) canceled() *models.DeprovisioningWorkflowResult {
	r.logger.Info("Deprovisioning workflow canceled", "stage", r.result.Stage)
	r.result.Canceled = true
	return r.result
}

func (r *deprovisioningRun) onCancelSignal(sig models.CancelDeprovisioningSignal) {
	if sig.OrganizationID != "" && sig.OrganizationID != r.input.OrganizationID {
		r.logger.Warn("Ignoring cancel signal for another organization", "signal_organization_id", sig.OrganizationID)
		return
	}
	r.cancelRequested = true
}

// pollCancel drains signals that arrived while a step was running.
func (r *deprovisioningRun) pollCancel() bool {
	for {
		var sig models.CancelDeprovisioningSignal
		if !r.cancelCh.ReceiveAsync(&sig) {
			break
		}
		r.onCancelSignal(sig)
	}
	return r.cancelRequested
}

// sleep waits d unless canceled first. It reports whether the run may go on.
func (r *deprovisioningRun) sleep(d time.Duration) bool {
	if r.pollCancel() {
		return false
	}
	if d <= 0 {
		return true
	}

	timerCtx, cancelTimer := workflow.WithCancel(r.ctx)
	timer := workflow.NewTimer(timerCtx, d)
	fired := false

	selector := workflow.NewSelector(r.ctx)
	selector.AddFuture(timer, func(f workflow.Future) {
		_ = f.Get(timerCtx, nil)
		fired = true
	})
	selector.AddReceive(r.cancelCh, func(c workflow.ReceiveChannel, _ bool) {
		var sig models.CancelDeprovisioningSignal
		c.Receive(r.ctx, &sig)
		r.onCancelSignal(sig)
	})

	for !fired && !r.cancelRequested {
		selector.Select(r.ctx)
	}
	if r.cancelRequested {
		cancelTimer()
		return false
	}
	return true
}

// notify runs one notification step and returns how many entries it covered.
func (r *deprovisioningRun) notify(level types.NotificationLevel) (int, error) {
	asOf := workflow.Now(r.ctx)

	var due models.StageEntries
	if err := workflow.ExecuteActivity(r.ctx, acts.GetDueForNotification, r.stageInput(level, asOf)).Get(r.ctx, &due); err != nil {
		r.logger.Error("Failed to load queue entries", "level", level, "error", err)
		searchattr.UpsertFailureSearchAttributes(r.ctx, "GetDueForNotification", err)
		return 0, err
	}
	if len(due.QueueEntryIDs) == 0 {
		return 0, nil
	}

	// Delivery is attempted, not guaranteed; the cadence goes on either way.
	var sent service.NotifyResult
	if err := workflow.ExecuteActivity(r.ctx, acts.NotifyAdmins, models.NotifyAdminsInput{
		OrganizationID: r.input.OrganizationID,
		Template:       level.Template(),
		Data:           templateData(level, &due, asOf),
	}).Get(r.ctx, &sent); err != nil {
		r.logger.Error("Failed to notify admins", "level", level, "error", err)
	}

	var advanced []string
	if err := workflow.ExecuteActivity(r.ctx, acts.AdvanceNotifications, models.AdvanceNotificationsInput{
		QueueEntryIDs: due.QueueEntryIDs,
		Level:         level,
		AsOf:          asOf,
	}).Get(r.ctx, &advanced); err != nil {
		r.logger.Error("Failed to record notification", "level", level, "error", err)
		searchattr.UpsertFailureSearchAttributes(r.ctx, "AdvanceNotifications", err)
		return 0, err
	}

	r.result.Notified[string(level)] = len(advanced)
	return len(advanced), nil
}

// execute deactivates each due entry on its own so one failure does not stop
// the rest. Failed entries stay NOTIFIED_FINAL for a later retry.
func (r *deprovisioningRun) execute() error {
	asOf := workflow.Now(r.ctx)

	var due models.StageEntries
	if err := workflow.ExecuteActivity(r.ctx, acts.GetDueForExecution, r.stageInput("", asOf)).Get(r.ctx, &due); err != nil {
		searchattr.UpsertFailureSearchAttributes(r.ctx, "GetDueForExecution", err)
		return err
	}

	for _, id := range due.QueueEntryIDs {
		var res service.ExecutionResult
		err := workflow.ExecuteActivity(r.ctx, acts.ExecuteDeactivation, models.ExecuteDeactivationInput{
			QueueEntryID: id,
			AsOf:         asOf,
		}).Get(r.ctx, &res)
		switch {
		case err != nil:
			r.result.FailureCount++
			r.logger.Error("Deactivation failed", "queue_entry_id", id, "error", err)
			searchattr.UpsertFailureSearchAttributes(r.ctx, "ExecuteDeactivation", err)
		case res.Succeeded():
			r.result.SuccessCount++
		default:
			r.result.SkippedCount++
		}
	}

	if r.result.SuccessCount == 0 {
		return nil
	}

	var sent service.NotifyResult
	if err := workflow.ExecuteActivity(r.ctx, acts.NotifyAdmins, models.NotifyAdminsInput{
		OrganizationID: r.input.OrganizationID,
		Template:       types.NotificationTemplateRemovalCompleted,
		Data:           notification.TemplateData{Count: r.result.SuccessCount},
	}).Get(r.ctx, &sent); err != nil {
		r.logger.Error("Failed to send removal summary", "error", err)
	}
	return nil
}

func (r *deprovisioningRun) stageInput(level types.NotificationLevel, asOf time.Time) models.StageEntriesInput {
	return models.StageEntriesInput{
		OrganizationID: r.input.OrganizationID,
		BatchID:        r.input.BatchID,
		QueueEntryIDs:  r.input.QueueEntryIDs,
		Level:          level,
		AsOf:           asOf,
	}
}

func templateData(level types.NotificationLevel, due *models.StageEntries, asOf time.Time) notification.TemplateData {
	switch level {
	case types.NotificationLevelReminder:
		return notification.TemplateData{DaysRemaining: types.DaysUntil(asOf, due.EarliestScheduledFor)}
	case types.NotificationLevelFinal:
		return notification.TemplateData{HoursRemaining: types.HoursUntil(asOf, due.EarliestScheduledFor)}
	default:
		return notification.TemplateData{
			AffectedUserIDs: due.UserIDs,
			ScheduledFor:    due.EarliestScheduledFor,
		}
	}
}
