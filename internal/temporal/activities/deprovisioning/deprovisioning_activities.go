package activities

import (
	"context"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/service"
	"github.com/flexprice/deprovisioner/internal/temporal/models"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// DeprovisioningActivities are the side effects of the deprovisioning workflow.
// Each one is a checkpoint: once it completes, a resumed workflow does not run it again.
type DeprovisioningActivities struct {
	queue         service.DeprovisioningQueueService
	execution     service.ExecutionService
	notifications service.NotificationService
}

func NewDeprovisioningActivities(
	queue service.DeprovisioningQueueService,
	execution service.ExecutionService,
	notifications service.NotificationService,
) *DeprovisioningActivities {
	return &DeprovisioningActivities{
		queue:         queue,
		execution:     execution,
		notifications: notifications,
	}
}

// GetDueForNotification re-reads the batch entries still waiting for input.Level.
func (a *DeprovisioningActivities) GetDueForNotification(ctx context.Context, input models.StageEntriesInput) (*models.StageEntries, error) {
	ctx = types.WithOrganizationID(ctx, input.OrganizationID)
	entries, err := a.queue.GetDueForNotification(ctx, input.Level, dueFilter(input))
	if err != nil {
		return nil, err
	}
	return stageEntries(entries), nil
}

// GetDueForExecution re-reads the batch entries in NOTIFIED_FINAL whose
// schedule has elapsed at input.AsOf.
func (a *DeprovisioningActivities) GetDueForExecution(ctx context.Context, input models.StageEntriesInput) (*models.StageEntries, error) {
	ctx = types.WithOrganizationID(ctx, input.OrganizationID)
	entries, err := a.queue.GetDueForExecution(ctx, dueFilter(input))
	if err != nil {
		return nil, err
	}
	return stageEntries(entries), nil
}

func (a *DeprovisioningActivities) NotifyAdmins(ctx context.Context, input models.NotifyAdminsInput) (*service.NotifyResult, error) {
	ctx = types.WithOrganizationID(ctx, input.OrganizationID)
	return a.notifications.NotifyAdmins(ctx, input.OrganizationID, input.Template, input.Data)
}

// AdvanceNotifications moves each entry to the status that follows
// input.Level. Entries that changed in the meantime are skipped.
func (a *DeprovisioningActivities) AdvanceNotifications(ctx context.Context, input models.AdvanceNotificationsInput) ([]string, error) {
	logger := activity.GetLogger(ctx)
	next := input.Level.NextStatus()

	advanced := make([]string, 0, len(input.QueueEntryIDs))
	for _, id := range input.QueueEntryIDs {
		_, err := a.queue.AdvanceNotification(ctx, id, next, input.AsOf)
		if err != nil {
			if ierr.IsInvalidOperation(err) || ierr.IsNotFound(err) {
				logger.Info("Queue entry changed before notification was recorded, skipping",
					"queue_entry_id", id, "error", err)
				continue
			}
			return advanced, err
		}
		advanced = append(advanced, id)
	}
	return advanced, nil
}

// ExecuteDeactivation runs the execution engine for one entry. A missing
// entry cannot be fixed by retrying.
func (a *DeprovisioningActivities) ExecuteDeactivation(ctx context.Context, input models.ExecuteDeactivationInput) (*service.ExecutionResult, error) {
	result, err := a.execution.ExecuteDeactivationAt(ctx, input.QueueEntryID, input.AsOf)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), "QueueEntryNotFound", err)
		}
		return nil, err
	}
	return result, nil
}

func dueFilter(input models.StageEntriesInput) service.DueFilter {
	f := service.DueFilter{
		OrganizationID: input.OrganizationID,
		BatchID:        input.BatchID,
		AsOf:           input.AsOf,
	}
	if input.BatchID == "" {
		f.IDs = input.QueueEntryIDs
	}
	return f
}

func stageEntries(entries []*deprovisioning.QueueEntry) *models.StageEntries {
	result := &models.StageEntries{
		QueueEntryIDs: lo.Map(entries, func(e *deprovisioning.QueueEntry, _ int) string { return e.ID }),
		UserIDs:       lo.Map(entries, func(e *deprovisioning.QueueEntry, _ int) string { return e.UserID }),
	}
	if len(entries) > 0 {
		result.EarliestScheduledFor = lo.MinBy(entries, func(a, b *deprovisioning.QueueEntry) bool {
			return a.ScheduledFor.Before(b.ScheduledFor)
		}).ScheduledFor
	}
	return result
}
