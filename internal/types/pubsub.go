package types

// EventName identifies a message published on the deprovisioning topics.
type EventName string

const (
	EventSubscriptionChanged     EventName = "subscription.changed"
	EventDeprovisioningScheduled EventName = "deprovisioning.scheduled"
	EventDeprovisioningCanceled  EventName = "deprovisioning.canceled"
	EventMembershipLeft          EventName = "membership.left"
)

// Message metadata keys.
const (
	MetadataEventName      = "event_name"
	MetadataOrganizationID = "organization_id"
)
