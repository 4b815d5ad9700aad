package service

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
)

// Entries younger than this are left to their workflow.
const reconcileGrace = time.Hour

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Executed         int `json:"executed"`
	Failed           int `json:"failed"`
	Skipped          int `json:"skipped"`
	Rescheduled      int `json:"rescheduled_batches"`
	StalledReminders int `json:"stalled_reminders"`
	StalledFinal     int `json:"stalled_final_warnings"`
}

// ReconciliationService is the safety net behind the workflows. It executes
// overdue NOTIFIED_FINAL entries, restarts batches whose workflow never
// started and reports notification stages that fell behind.
type ReconciliationService interface {
	Reconcile(ctx context.Context) (*ReconcileResult, error)
}

type reconciliationService struct {
	ServiceParams
	queue     DeprovisioningQueueService
	execution ExecutionService
}

func NewReconciliationService(params ServiceParams, queue DeprovisioningQueueService, execution ExecutionService) ReconciliationService {
	return &reconciliationService{
		ServiceParams: params,
		queue:         queue,
		execution:     execution,
	}
}

func (s *reconciliationService) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	now := s.now()
	cutoff := now.Add(-reconcileGrace)
	result := &ReconcileResult{}

	if err := s.executeOverdue(ctx, cutoff, result); err != nil {
		return nil, err
	}
	if err := s.rescheduleStalled(ctx, cutoff, result); err != nil {
		return nil, err
	}
	if err := s.reportStalledNotifications(ctx, cutoff, result); err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("deprovisioning reconciliation finished",
		"executed", result.Executed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"rescheduled_batches", result.Rescheduled,
		"stalled_reminders", result.StalledReminders,
		"stalled_final_warnings", result.StalledFinal)
	return result, nil
}

func (s *reconciliationService) executeOverdue(ctx context.Context, asOf time.Time, result *ReconcileResult) error {
	due, err := s.queue.GetDueForExecution(ctx, DueFilter{
		AsOf:  asOf,
		Limit: s.Config.Scheduler.ReconcileBatchSize,
	})
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(lo.Max([]int{s.Config.Scheduler.MaxConcurrency, 1}))
	for _, entry := range due {
		entry := entry
		p.Go(func() {
			res, err := s.execution.ExecuteDeactivationAt(types.WithOrganizationID(ctx, entry.OrganizationID), entry.ID, asOf)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				s.Logger.WithContext(ctx).Errorw("reconciler failed to execute deactivation",
					"queue_entry_id", entry.ID,
					"organization_id", entry.OrganizationID,
					"error", err)
			case res.Succeeded():
				result.Executed++
			default:
				result.Skipped++
			}
		})
	}
	p.Wait()
	return nil
}

// rescheduleStalled republishes batches still PENDING after the grace. The
// workflow id is derived from the batch, so a running workflow is not started twice.
func (s *reconciliationService) rescheduleStalled(ctx context.Context, cutoff time.Time, result *ReconcileResult) error {
	pending, err := s.queue.GetDueForNotification(ctx, types.NotificationLevelScheduled, DueFilter{
		AsOf:  cutoff,
		Limit: s.Config.Scheduler.ReconcileBatchSize,
	})
	if err != nil {
		return err
	}

	stalled := lo.Filter(pending, func(e *deprovisioning.QueueEntry, _ int) bool {
		return e.UpdatedAt.Before(cutoff)
	})
	batches := lo.GroupBy(stalled, func(e *deprovisioning.QueueEntry) string { return e.BatchID })

	for batchID, entries := range batches {
		event := &events.DeprovisioningScheduled{
			OrganizationID: entries[0].OrganizationID,
			BatchID:        batchID,
			QueueEntryIDs:  lo.Map(entries, func(e *deprovisioning.QueueEntry, _ int) string { return e.ID }),
		}
		if err := s.EventPublisher.Publish(ctx, event); err != nil {
			s.Logger.WithContext(ctx).Errorw("failed to reschedule stalled batch",
				"batch_id", batchID,
				"organization_id", event.OrganizationID,
				"error", err)
			continue
		}
		result.Rescheduled++
	}
	return nil
}

func (s *reconciliationService) reportStalledNotifications(ctx context.Context, cutoff time.Time, result *ReconcileResult) error {
	reminders, err := s.queue.GetDueForNotification(ctx, types.NotificationLevelReminder, DueFilter{AsOf: cutoff})
	if err != nil {
		return err
	}
	final, err := s.queue.GetDueForNotification(ctx, types.NotificationLevelFinal, DueFilter{AsOf: cutoff})
	if err != nil {
		return err
	}

	result.StalledReminders = len(reminders)
	result.StalledFinal = len(final)
	for _, e := range append(reminders, final...) {
		s.Logger.WithContext(ctx).Warnw("deprovisioning notification overdue",
			"queue_entry_id", e.ID,
			"organization_id", e.OrganizationID,
			"batch_id", e.BatchID,
			"status", e.Status)
	}
	return nil
}
