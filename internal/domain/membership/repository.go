package membership

import (
	"context"
	"time"
)

// Repository reads organization membership and performs the two writes
// deprovisioning needs: dropping invitations and soft deactivating members.
type Repository interface {
	GetOrganization(ctx context.Context, organizationID string) (*Organization, error)

	// GetSnapshot returns the organization with its active members and pending
	// invitations, read in one transaction.
	GetSnapshot(ctx context.Context, organizationID string) (*Snapshot, error)

	// GetMember returns the membership regardless of its active flag.
	GetMember(ctx context.Context, organizationID, userID string) (*Member, error)

	ListAdmins(ctx context.Context, organizationID string) ([]*Member, error)

	// DeleteInvitations removes the given invitations and returns how many existed.
	DeleteInvitations(ctx context.Context, organizationID string, invitationIDs []string) (int, error)

	// Deactivate flips is_active to false. It reports false when the membership
	// was already inactive.
	Deactivate(ctx context.Context, organizationID, userID string, at time.Time) (bool, error)

	// ClaimSubscriptionEvent records eventAt as the latest subscription event
	// applied to the organization. It reports false, and records nothing, when
	// a later event was already recorded.
	ClaimSubscriptionEvent(ctx context.Context, organizationID string, eventAt time.Time) (bool, error)
}
