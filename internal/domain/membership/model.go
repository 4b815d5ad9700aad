package membership

import (
	"time"

	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

// Organization is the tenant whose member capacity is enforced.
type Organization struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CreatorUserID string `json:"creator_user_id,omitempty"`
}

// Member is a user's standing in an organization.
type Member struct {
	OrganizationID string               `json:"organization_id"`
	UserID         string               `json:"user_id"`
	Email          string               `json:"email"`
	Name           string               `json:"name"`
	Role           types.MembershipRole `json:"role"`
	JoinedAt       time.Time            `json:"joined_at"`
	IsActive       bool                 `json:"is_active"`
	DeactivatedAt  *time.Time           `json:"deactivated_at,omitempty"`
}

func (m *Member) IsAdmin() bool {
	return m.Role.IsAdmin()
}

// Invitation is a pending, not yet accepted membership request.
type Invitation struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
}

// Snapshot is a consistent read of everything that counts against the
// organization's member limit.
type Snapshot struct {
	Organization *Organization
	Members      []*Member
	Invitations  []*Invitation
}

// CurrentTotal is the number of seats in use, pending invitations included.
func (s *Snapshot) CurrentTotal() int {
	return len(s.Members) + len(s.Invitations)
}

// Admins returns the active admins in the snapshot.
func (s *Snapshot) Admins() []*Member {
	return lo.Filter(s.Members, func(m *Member, _ int) bool {
		return m.IsAdmin()
	})
}

// IsCreator reports whether userID created the organization.
func (s *Snapshot) IsCreator(userID string) bool {
	return s.Organization != nil && s.Organization.CreatorUserID != "" && s.Organization.CreatorUserID == userID
}
