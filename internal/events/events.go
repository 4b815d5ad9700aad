// Package events defines the messages exchanged on the deprovisioning topics
// and publishes them through watermill.
package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/types"
)

// Event is a payload that can be published.
type Event interface {
	EventName() types.EventName
	GetOrganizationID() string
}

// SubscriptionChanged is the billing event that drives the handler. An empty
// NewProductID means the subscription was canceled outright.
type SubscriptionChanged struct {
	OrganizationID string `json:"organization_id"`
	OldProductID   string `json:"old_product_id,omitempty"`
	NewProductID   string `json:"new_product_id,omitempty"`
	EventAt        int64  `json:"event_at"`
}

func (e *SubscriptionChanged) EventName() types.EventName { return types.EventSubscriptionChanged }
func (e *SubscriptionChanged) GetOrganizationID() string  { return e.OrganizationID }

// EventTime converts EventAt (unix seconds) to a UTC time. Zero stays zero.
func (e *SubscriptionChanged) EventTime() time.Time {
	if e.EventAt == 0 {
		return time.Time{}
	}
	return time.Unix(e.EventAt, 0).UTC()
}

func (e *SubscriptionChanged) Validate() error {
	if e.OrganizationID == "" {
		return ierr.NewError("organization_id is required").
			WithHint("Subscription change must name an organization").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DeprovisioningScheduled starts the workflow for one batch of queue entries.
type DeprovisioningScheduled struct {
	OrganizationID string   `json:"organization_id"`
	BatchID        string   `json:"batch_id"`
	QueueEntryIDs  []string `json:"queue_entry_ids"`
}

func (e *DeprovisioningScheduled) EventName() types.EventName {
	return types.EventDeprovisioningScheduled
}
func (e *DeprovisioningScheduled) GetOrganizationID() string { return e.OrganizationID }

// DeprovisioningCanceled halts every running workflow of the organization.
// BatchIDs lists the batches known to be affected.
type DeprovisioningCanceled struct {
	OrganizationID string            `json:"organization_id"`
	BatchIDs       []string          `json:"batch_ids,omitempty"`
	Status         types.QueueStatus `json:"status,omitempty"`
}

func (e *DeprovisioningCanceled) EventName() types.EventName {
	return types.EventDeprovisioningCanceled
}
func (e *DeprovisioningCanceled) GetOrganizationID() string { return e.OrganizationID }

// MembershipLeft is emitted when a user leaves an organization voluntarily.
type MembershipLeft struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
}

func (e *MembershipLeft) EventName() types.EventName { return types.EventMembershipLeft }
func (e *MembershipLeft) GetOrganizationID() string  { return e.OrganizationID }

// EventNameOf returns the event name stored in the message metadata.
func EventNameOf(msg *message.Message) types.EventName {
	return types.EventName(msg.Metadata.Get(types.MetadataEventName))
}

// Decode unmarshals the message payload into v.
func Decode(msg *message.Message, v interface{}) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return ierr.WithError(err).
			WithHintf("Malformed %s message", EventNameOf(msg)).
			Mark(ierr.ErrValidation)
	}
	return nil
}
