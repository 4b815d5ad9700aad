package deprovisioning

import (
	"context"

	"github.com/flexprice/deprovisioner/internal/types"
)

// Repository persists queue entries.
type Repository interface {
	// Upsert inserts the entry or, when one already exists for the same
	// (organization, user), resets it to the given entry's schedule, reason and
	// batch with zeroed counters. The stored entry is returned.
	Upsert(ctx context.Context, entry *QueueEntry) (*QueueEntry, error)

	Get(ctx context.Context, id string) (*QueueEntry, error)
	GetByOrganizationAndUser(ctx context.Context, organizationID, userID string) (*QueueEntry, error)
	List(ctx context.Context, filter *Filter) ([]*QueueEntry, error)

	// Update writes the entry only if its stored status still equals
	// expected. A mismatch returns an ErrInvalidOperation error.
	Update(ctx context.Context, entry *QueueEntry, expected types.QueueStatus) error

	// CancelByOrganization moves every non-terminal entry of the organization
	// to status and returns the entries it changed.
	CancelByOrganization(ctx context.Context, organizationID string, status types.QueueStatus) ([]*QueueEntry, error)
}
