package service

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/postgres"
	"github.com/flexprice/deprovisioner/internal/selection"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

type UpsertEntriesRequest struct {
	OrganizationID string
	Candidates     []*selection.MembershipCandidate
	Reason         types.DeprovisioningReason

	// GracePeriodDays defaults to deprovisioning.grace_period_days.
	GracePeriodDays int

	// BatchID groups the entries under one workflow. Generated when empty.
	BatchID string
}

func (r *UpsertEntriesRequest) Validate() error {
	if r.OrganizationID == "" {
		return ierr.NewError("organization_id is required").
			WithHint("Organization ID is required").
			Mark(ierr.ErrValidation)
	}
	if r.GracePeriodDays < 0 {
		return ierr.NewError("grace period cannot be negative").
			WithHint("Grace period must be a positive number of days").
			Mark(ierr.ErrValidation)
	}
	return r.Reason.Validate()
}

type UpsertEntriesResult struct {
	BatchID string   `json:"batch_id"`
	IDs     []string `json:"ids"`

	// FailedUserIDs were skipped because their write failed.
	FailedUserIDs []string `json:"failed_user_ids,omitempty"`
}

// DueFilter narrows the due-entry accessors. AsOf defaults to the service clock.
type DueFilter struct {
	IDs            []string
	OrganizationID string
	BatchID        string
	AsOf           time.Time
	Limit          int
}

type ExtensionRequest struct {
	Days      int    `json:"days,omitempty"`
	GrantedBy string `json:"granted_by" binding:"required"`
	Reason    string `json:"reason"`
}

func (r *ExtensionRequest) Validate() error {
	if r.GrantedBy == "" {
		return ierr.NewError("granted_by is required").
			WithHint("Extensions must record who granted them").
			Mark(ierr.ErrValidation)
	}
	if r.Days < 0 {
		return ierr.NewError("extension days cannot be negative").
			WithHint("Extension must be a positive number of days").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type DeprovisioningQueueService interface {
	UpsertEntries(ctx context.Context, req *UpsertEntriesRequest) (*UpsertEntriesResult, error)
	GetEntry(ctx context.Context, id string) (*deprovisioning.QueueEntry, error)
	ListEntries(ctx context.Context, filter *deprovisioning.Filter) ([]*deprovisioning.QueueEntry, error)

	// GetPending returns the organization's non-terminal entries.
	GetPending(ctx context.Context, organizationID string) ([]*deprovisioning.QueueEntry, error)
	GetDueForNotification(ctx context.Context, level types.NotificationLevel, filter DueFilter) ([]*deprovisioning.QueueEntry, error)
	GetDueForExecution(ctx context.Context, filter DueFilter) ([]*deprovisioning.QueueEntry, error)

	AdvanceNotification(ctx context.Context, id string, newStatus types.QueueStatus, at time.Time) (*deprovisioning.QueueEntry, error)
	MarkCompleted(ctx context.Context, id string) (*deprovisioning.QueueEntry, error)
	Cancel(ctx context.Context, id string, status types.QueueStatus) (*deprovisioning.QueueEntry, error)
	CancelAll(ctx context.Context, organizationID string, status types.QueueStatus) ([]*deprovisioning.QueueEntry, error)
	GrantExtension(ctx context.Context, id string, req *ExtensionRequest) (*deprovisioning.QueueEntry, error)

	// HandleMemberLeft cancels the user's entry after a voluntary leave. It
	// returns nil when the user had no entry.
	HandleMemberLeft(ctx context.Context, organizationID, userID string) (*deprovisioning.QueueEntry, error)
}

type deprovisioningQueueService struct {
	ServiceParams
}

func NewDeprovisioningQueueService(params ServiceParams) DeprovisioningQueueService {
	return &deprovisioningQueueService{ServiceParams: params}
}

func (s *deprovisioningQueueService) UpsertEntries(ctx context.Context, req *UpsertEntriesRequest) (*UpsertEntriesResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	graceDays := req.GracePeriodDays
	if graceDays == 0 {
		graceDays = s.Config.Deprovisioning.GracePeriodDays
	}
	batchID := lo.Ternary(req.BatchID != "", req.BatchID, types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DEPROVISIONING_BATCH))
	now := s.now()

	result := &UpsertEntriesResult{BatchID: batchID, IDs: []string{}}
	for _, c := range req.Candidates {
		entry := deprovisioning.NewQueueEntry(req.OrganizationID, c.UserID, batchID, req.Reason, now, days(graceDays))

		var stored *deprovisioning.QueueEntry
		err := s.DB.WithTx(ctx, func(ctx context.Context) error {
			if err := s.lockEntry(ctx, req.OrganizationID, c.UserID); err != nil {
				return err
			}
			var err error
			stored, err = s.QueueRepo.Upsert(ctx, entry)
			return err
		})
		if err != nil {
			s.Logger.WithContext(ctx).Errorw("failed to queue member for removal, skipping",
				"organization_id", req.OrganizationID,
				"user_id", c.UserID,
				"error", err,
			)
			result.FailedUserIDs = append(result.FailedUserIDs, c.UserID)
			continue
		}
		result.IDs = append(result.IDs, stored.ID)
	}

	s.Metrics.RecordQueued(ctx, string(req.Reason), len(result.IDs))
	s.Logger.WithContext(ctx).Infow("queued members for removal",
		"organization_id", req.OrganizationID,
		"batch_id", batchID,
		"queued", len(result.IDs),
		"failed", len(result.FailedUserIDs),
		"grace_period_days", graceDays,
	)
	return result, nil
}

func (s *deprovisioningQueueService) GetEntry(ctx context.Context, id string) (*deprovisioning.QueueEntry, error) {
	if id == "" {
		return nil, ierr.NewError("queue entry id is required").
			WithHint("Queue entry ID is required").
			Mark(ierr.ErrValidation)
	}
	return s.QueueRepo.Get(ctx, id)
}

func (s *deprovisioningQueueService) ListEntries(ctx context.Context, filter *deprovisioning.Filter) ([]*deprovisioning.QueueEntry, error) {
	return s.QueueRepo.List(ctx, filter)
}

func (s *deprovisioningQueueService) GetPending(ctx context.Context, organizationID string) ([]*deprovisioning.QueueEntry, error) {
	if organizationID == "" {
		return nil, ierr.NewError("organization_id is required").
			WithHint("Organization ID is required").
			Mark(ierr.ErrValidation)
	}
	return s.QueueRepo.List(ctx, &deprovisioning.Filter{
		OrganizationID: organizationID,
		Statuses:       types.ActiveQueueStatuses,
	})
}

// GetDueForNotification returns the entries waiting for level. Reminder and
// final levels also require the configured delay since the last notification.
func (s *deprovisioningQueueService) GetDueForNotification(ctx context.Context, level types.NotificationLevel, filter DueFilter) ([]*deprovisioning.QueueEntry, error) {
	if err := level.Validate(); err != nil {
		return nil, err
	}

	asOf := s.asOf(filter)
	f := &deprovisioning.Filter{
		IDs:            filter.IDs,
		OrganizationID: filter.OrganizationID,
		BatchID:        filter.BatchID,
		Statuses:       []types.QueueStatus{level.RequiredStatus()},
		Limit:          filter.Limit,
	}
	switch level {
	case types.NotificationLevelReminder:
		f.LastNotifiedBefore = lo.ToPtr(asOf.Add(-s.Config.Deprovisioning.ReminderAfter))
	case types.NotificationLevelFinal:
		f.LastNotifiedBefore = lo.ToPtr(asOf.Add(-s.Config.Deprovisioning.FinalWarningAfter))
	}
	return s.QueueRepo.List(ctx, f)
}

func (s *deprovisioningQueueService) GetDueForExecution(ctx context.Context, filter DueFilter) ([]*deprovisioning.QueueEntry, error) {
	return s.QueueRepo.List(ctx, &deprovisioning.Filter{
		IDs:             filter.IDs,
		OrganizationID:  filter.OrganizationID,
		BatchID:         filter.BatchID,
		Statuses:        []types.QueueStatus{types.QueueStatusNotifiedFinal},
		ScheduledBefore: lo.ToPtr(s.asOf(filter)),
		Limit:           filter.Limit,
	})
}

// AdvanceNotification records one more notification and moves the entry to
// newStatus. Repeating the call for an entry already in newStatus is a no-op.
func (s *deprovisioningQueueService) AdvanceNotification(ctx context.Context, id string, newStatus types.QueueStatus, at time.Time) (*deprovisioning.QueueEntry, error) {
	entry, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == newStatus {
		return entry, nil
	}
	if newStatus == types.QueueStatusCompleted || !entry.Status.CanTransitionTo(newStatus) {
		return nil, ierr.NewErrorf("cannot move queue entry from %s to %s", entry.Status, newStatus).
			WithHint("Notifications must advance one stage at a time").
			WithReportableDetails(map[string]any{
				"queue_entry_id": id,
				"status":         entry.Status,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	previous := entry.Status
	entry.Status = newStatus
	entry.NotificationsSent++
	entry.LastNotificationAt = lo.ToPtr(at)
	entry.UpdatedAt = s.now()
	if err := s.QueueRepo.Update(ctx, entry, previous); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *deprovisioningQueueService) MarkCompleted(ctx context.Context, id string) (*deprovisioning.QueueEntry, error) {
	entry, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Status == types.QueueStatusCompleted {
		return entry, nil
	}
	if !entry.Status.CanTransitionTo(types.QueueStatusCompleted) {
		return nil, ierr.NewErrorf("cannot complete queue entry in status %s", entry.Status).
			WithHint("Only entries that received the final warning can be completed").
			Mark(ierr.ErrInvalidOperation)
	}

	previous := entry.Status
	entry.Status = types.QueueStatusCompleted
	entry.UpdatedAt = s.now()
	if err := s.QueueRepo.Update(ctx, entry, previous); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *deprovisioningQueueService) Cancel(ctx context.Context, id string, status types.QueueStatus) (*deprovisioning.QueueEntry, error) {
	if err := validateCancelStatus(status); err != nil {
		return nil, err
	}

	entry, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !entry.Status.CanTransitionTo(status) {
		return nil, ierr.NewErrorf("queue entry %s is already %s", id, entry.Status).
			WithHint("Only scheduled removals can be canceled").
			Mark(ierr.ErrInvalidOperation)
	}

	previous := entry.Status
	entry.Status = status
	entry.UpdatedAt = s.now()
	if err := s.QueueRepo.Update(ctx, entry, previous); err != nil {
		return nil, err
	}

	s.Metrics.RecordCancellation(ctx, string(status), 1)
	s.Logger.WithContext(ctx).Infow("canceled scheduled removal",
		"queue_entry_id", id,
		"organization_id", entry.OrganizationID,
		"user_id", entry.UserID,
		"status", status,
	)
	return entry, nil
}

func (s *deprovisioningQueueService) CancelAll(ctx context.Context, organizationID string, status types.QueueStatus) ([]*deprovisioning.QueueEntry, error) {
	if organizationID == "" {
		return nil, ierr.NewError("organization_id is required").
			WithHint("Organization ID is required").
			Mark(ierr.ErrValidation)
	}
	if err := validateCancelStatus(status); err != nil {
		return nil, err
	}

	var canceled []*deprovisioning.QueueEntry
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := lockOrganization(ctx, s.DB, organizationID); err != nil {
			return err
		}
		var err error
		canceled, err = s.QueueRepo.CancelByOrganization(ctx, organizationID, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.RecordCancellation(ctx, string(status), len(canceled))
	s.Logger.WithContext(ctx).Infow("canceled scheduled removals for organization",
		"organization_id", organizationID,
		"status", status,
		"count", len(canceled),
	)
	return canceled, nil
}

// GrantExtension pushes the removal date back once per cycle and restarts the
// notification sequence under a new batch.
func (s *deprovisioningQueueService) GrantExtension(ctx context.Context, id string, req *ExtensionRequest) (*deprovisioning.QueueEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	extensionDays := lo.Ternary(req.Days > 0, req.Days, s.Config.Deprovisioning.ExtensionDays)

	var entry *deprovisioning.QueueEntry
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if err := s.lockEntry(ctx, current.OrganizationID, current.UserID); err != nil {
			return err
		}
		// re-read under the lock
		current, err = s.QueueRepo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return ierr.NewErrorf("queue entry %s is already %s", id, current.Status).
				WithHint("Only scheduled removals can be extended").
				Mark(ierr.ErrInvalidOperation)
		}
		if current.ExtensionGranted {
			return ierr.NewErrorf("queue entry %s was already extended", id).
				WithHint("An extension has already been granted for this removal").
				WithReportableDetails(map[string]any{"extended_by": current.ExtendedBy}).
				Mark(ierr.ErrInvalidOperation)
		}

		now := s.now()
		scheduledFor := now.Add(days(extensionDays))
		if scheduledFor.Before(current.ScheduledFor) {
			scheduledFor = current.ScheduledFor.Add(days(extensionDays))
		}

		previous := current.Status
		current.Status = types.QueueStatusPending
		current.ScheduledFor = scheduledFor
		current.NotificationsSent = 0
		current.LastNotificationAt = nil
		current.ExtensionGranted = true
		current.ExtensionReason = req.Reason
		current.ExtendedBy = req.GrantedBy
		current.BatchID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DEPROVISIONING_BATCH)
		current.UpdatedAt = now
		if err := s.QueueRepo.Update(ctx, current, previous); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.WithContext(ctx).Infow("granted deprovisioning extension",
		"queue_entry_id", id,
		"organization_id", entry.OrganizationID,
		"user_id", entry.UserID,
		"scheduled_for", entry.ScheduledFor,
		"granted_by", req.GrantedBy,
	)

	// The reconciler republishes stalled batches, so a failed publish is not fatal.
	if err := s.EventPublisher.Publish(ctx, &events.DeprovisioningScheduled{
		OrganizationID: entry.OrganizationID,
		BatchID:        entry.BatchID,
		QueueEntryIDs:  []string{entry.ID},
	}); err != nil {
		s.Logger.WithContext(ctx).Errorw("failed to restart deprovisioning workflow after extension",
			"queue_entry_id", id,
			"batch_id", entry.BatchID,
			"error", err,
		)
	}
	return entry, nil
}

func (s *deprovisioningQueueService) HandleMemberLeft(ctx context.Context, organizationID, userID string) (*deprovisioning.QueueEntry, error) {
	entry, err := s.QueueRepo.GetByOrganizationAndUser(ctx, organizationID, userID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if entry.Status.IsTerminal() {
		return entry, nil
	}
	return s.Cancel(ctx, entry.ID, types.QueueStatusCanceledUserLeft)
}

func (s *deprovisioningQueueService) lockEntry(ctx context.Context, organizationID, userID string) error {
	return lockMembership(ctx, s.DB, organizationID, userID)
}

// lockOrganization serializes organization wide writers: bulk cancellation
// and subscription event ordering.
func lockOrganization(ctx context.Context, db postgres.IClient, organizationID string) error {
	return db.LockKey(ctx, types.LockRequest{
		Key: types.GenerateLockKey(ctx, types.LockScopeOrganization, map[string]interface{}{
			"organization_id": organizationID,
		}),
	})
}

// lockMembership serializes writers of one (organization, user) queue entry
// for the rest of the transaction.
func lockMembership(ctx context.Context, db postgres.IClient, organizationID, userID string) error {
	return db.LockKey(ctx, types.LockRequest{
		Key: types.GenerateLockKey(ctx, types.LockScopeQueueEntry, map[string]interface{}{
			"organization_id": organizationID,
			"user_id":         userID,
		}),
	})
}

func (s *deprovisioningQueueService) asOf(filter DueFilter) time.Time {
	if filter.AsOf.IsZero() {
		return s.now()
	}
	return filter.AsOf
}

func validateCancelStatus(status types.QueueStatus) error {
	if !status.IsCanceled() {
		return ierr.NewErrorf("%s is not a cancellation status", status).
			WithHint("Status must be CANCELED_UPGRADE, CANCELED_MANUAL or CANCELED_USER_LEFT").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
