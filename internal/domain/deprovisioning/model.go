package deprovisioning

import (
	"time"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/types"
)

// QueueEntry is the durable unit of work tracking one user's pending removal
// from one organization. There is at most one entry per (organization, user).
type QueueEntry struct {
	ID                   string                     `json:"id"`
	OrganizationID       string                     `json:"organization_id"`
	UserID               string                     `json:"user_id"`
	Status               types.QueueStatus          `json:"status"`
	ScheduledFor         time.Time                  `json:"scheduled_for"`
	OriginalScheduledFor time.Time                  `json:"original_scheduled_for"`
	Reason               types.DeprovisioningReason `json:"reason"`
	NotificationsSent    int                        `json:"notifications_sent"`
	LastNotificationAt   *time.Time                 `json:"last_notification_at,omitempty"`
	ExtensionGranted     bool                       `json:"extension_granted"`
	ExtensionReason      string                     `json:"extension_reason,omitempty"`
	ExtendedBy           string                     `json:"extended_by,omitempty"`
	BatchID              string                     `json:"batch_id"`
	CreatedAt            time.Time                  `json:"created_at"`
	UpdatedAt            time.Time                  `json:"updated_at"`
}

// NewQueueEntry builds a PENDING entry scheduled gracePeriod after now.
func NewQueueEntry(organizationID, userID, batchID string, reason types.DeprovisioningReason, now time.Time, gracePeriod time.Duration) *QueueEntry {
	scheduledFor := now.Add(gracePeriod)
	return &QueueEntry{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_DEPROVISIONING_ENTRY),
		OrganizationID:       organizationID,
		UserID:               userID,
		Status:               types.QueueStatusPending,
		ScheduledFor:         scheduledFor,
		OriginalScheduledFor: scheduledFor,
		Reason:               reason,
		BatchID:              batchID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func (e *QueueEntry) Validate() error {
	if e.OrganizationID == "" || e.UserID == "" {
		return ierr.NewError("organization_id and user_id are required").
			WithHint("Queue entry must reference an organization and a user").
			Mark(ierr.ErrValidation)
	}
	if err := e.Status.Validate(); err != nil {
		return err
	}
	if err := e.Reason.Validate(); err != nil {
		return err
	}
	if e.ScheduledFor.IsZero() {
		return ierr.NewError("scheduled_for is required").
			WithHint("Queue entry must have an execution time").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Reactivate restarts the cycle for an existing (organization, user) entry.
// The id and created_at are kept.
func (e *QueueEntry) Reactivate(from *QueueEntry) {
	e.Status = types.QueueStatusPending
	e.ScheduledFor = from.ScheduledFor
	e.OriginalScheduledFor = from.OriginalScheduledFor
	e.Reason = from.Reason
	e.BatchID = from.BatchID
	e.NotificationsSent = 0
	e.LastNotificationAt = nil
	e.ExtensionGranted = false
	e.ExtensionReason = ""
	e.ExtendedBy = ""
	e.UpdatedAt = from.UpdatedAt
}

// IsDueForExecution reports whether the entry may be deactivated at now.
func (e *QueueEntry) IsDueForExecution(now time.Time) bool {
	return e.Status == types.QueueStatusNotifiedFinal && !e.ScheduledFor.After(now)
}

// DaysRemaining is the whole number of days left until scheduled removal.
func (e *QueueEntry) DaysRemaining(now time.Time) int {
	return types.DaysUntil(now, e.ScheduledFor)
}

// Filter selects queue entries. Empty fields do not constrain the result.
type Filter struct {
	IDs            []string
	OrganizationID string
	BatchID        string
	Statuses       []types.QueueStatus

	// ScheduledBefore keeps entries with scheduled_for <= the value.
	ScheduledBefore *time.Time

	// LastNotifiedBefore keeps entries whose last notification is at or
	// before the value.
	LastNotifiedBefore *time.Time

	Limit int
}
