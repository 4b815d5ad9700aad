package dto

import (
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/service"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

// QueueEntryResponse is the admin view of a queue entry
type QueueEntryResponse struct {
	ID                   string                     `json:"id"`
	OrganizationID       string                     `json:"organization_id"`
	UserID               string                     `json:"user_id"`
	Status               types.QueueStatus          `json:"status"`
	Reason               types.DeprovisioningReason `json:"reason"`
	ScheduledFor         time.Time                  `json:"scheduled_for"`
	OriginalScheduledFor time.Time                  `json:"original_scheduled_for"`
	NotificationsSent    int                        `json:"notifications_sent"`
	LastNotificationAt   *time.Time                 `json:"last_notification_at,omitempty"`
	ExtensionGranted     bool                       `json:"extension_granted"`
	ExtensionReason      string                     `json:"extension_reason,omitempty"`
	ExtendedBy           string                     `json:"extended_by,omitempty"`
	BatchID              string                     `json:"batch_id"`
	UpdatedAt            time.Time                  `json:"updated_at"`
}

func NewQueueEntryResponse(e *deprovisioning.QueueEntry) *QueueEntryResponse {
	return &QueueEntryResponse{
		ID:                   e.ID,
		OrganizationID:       e.OrganizationID,
		UserID:               e.UserID,
		Status:               e.Status,
		Reason:               e.Reason,
		ScheduledFor:         e.ScheduledFor,
		OriginalScheduledFor: e.OriginalScheduledFor,
		NotificationsSent:    e.NotificationsSent,
		LastNotificationAt:   e.LastNotificationAt,
		ExtensionGranted:     e.ExtensionGranted,
		ExtensionReason:      e.ExtensionReason,
		ExtendedBy:           e.ExtendedBy,
		BatchID:              e.BatchID,
		UpdatedAt:            e.UpdatedAt,
	}
}

type ListQueueEntriesResponse struct {
	Items []*QueueEntryResponse `json:"items"`
	Total int                   `json:"total"`
}

func NewListQueueEntriesResponse(entries []*deprovisioning.QueueEntry) *ListQueueEntriesResponse {
	return &ListQueueEntriesResponse{
		Items: lo.Map(entries, func(e *deprovisioning.QueueEntry, _ int) *QueueEntryResponse {
			return NewQueueEntryResponse(e)
		}),
		Total: len(entries),
	}
}

// ExtendQueueEntryRequest grants the one-time grace extension
type ExtendQueueEntryRequest struct {
	Days      int    `json:"days,omitempty"`
	GrantedBy string `json:"granted_by" binding:"required"`
	Reason    string `json:"reason"`
}

func (r *ExtendQueueEntryRequest) Validate() error {
	if r.Days < 0 {
		return ierr.NewError("days must not be negative").
			WithHint("Extension days must be a positive number").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (r *ExtendQueueEntryRequest) ToExtensionRequest() *service.ExtensionRequest {
	return &service.ExtensionRequest{
		Days:      r.Days,
		GrantedBy: r.GrantedBy,
		Reason:    r.Reason,
	}
}

// CancelQueueEntryRequest cancels an entry by hand
type CancelQueueEntryRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SubscriptionChangeRequest is the billing provider's subscription change callback
type SubscriptionChangeRequest struct {
	OrganizationID string `json:"organization_id" binding:"required"`
	OldProductID   string `json:"old_product_id"`
	NewProductID   string `json:"new_product_id"`
	// EventAt is unix seconds; the receive time is used when zero.
	EventAt int64 `json:"event_at"`
}

func (r *SubscriptionChangeRequest) ToEvent(now time.Time) *events.SubscriptionChanged {
	eventAt := r.EventAt
	if eventAt == 0 {
		eventAt = now.Unix()
	}
	return &events.SubscriptionChanged{
		OrganizationID: r.OrganizationID,
		OldProductID:   r.OldProductID,
		NewProductID:   r.NewProductID,
		EventAt:        eventAt,
	}
}

type AcceptedResponse struct {
	Status string `json:"status"`
}
