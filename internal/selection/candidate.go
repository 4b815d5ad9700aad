package selection

import (
	"time"

	"github.com/flexprice/deprovisioner/internal/types"
)

// CandidateKind discriminates the Candidate variants.
type CandidateKind string

const (
	CandidateKindInvitation CandidateKind = "invitation"
	CandidateKindMembership CandidateKind = "membership"
)

// Priority tiers. Lower is removed first.
const (
	PriorityInvitation = 1
	PriorityMember     = 2
	PriorityAdmin      = 3
)

// Candidate is either an *InvitationCandidate or a *MembershipCandidate.
type Candidate interface {
	Kind() CandidateKind
	// Identity is the invitation email or the membership user id.
	Identity() string
	Priority() int
	Reason() string

	candidate()
}

// InvitationCandidate is a pending invitation selected for removal.
type InvitationCandidate struct {
	InvitationID string    `json:"invitation_id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	reason       string
}

func (c *InvitationCandidate) Kind() CandidateKind { return CandidateKindInvitation }
func (c *InvitationCandidate) Identity() string    { return c.Email }
func (c *InvitationCandidate) Priority() int       { return PriorityInvitation }
func (c *InvitationCandidate) Reason() string      { return c.reason }
func (c *InvitationCandidate) candidate()          {}

// MembershipCandidate is an active membership selected for removal.
type MembershipCandidate struct {
	UserID    string               `json:"user_id"`
	Email     string               `json:"email"`
	Name      string               `json:"name"`
	Role      types.MembershipRole `json:"role"`
	JoinedAt  time.Time            `json:"joined_at"`
	IsCreator bool                 `json:"is_creator"`
	priority  int
	reason    string
}

func (c *MembershipCandidate) Kind() CandidateKind { return CandidateKindMembership }
func (c *MembershipCandidate) Identity() string    { return c.UserID }
func (c *MembershipCandidate) Priority() int       { return c.priority }
func (c *MembershipCandidate) Reason() string      { return c.reason }
func (c *MembershipCandidate) candidate()          {}

// Invitations returns the invitation variants of candidates, in order.
func Invitations(candidates []Candidate) []*InvitationCandidate {
	out := make([]*InvitationCandidate, 0, len(candidates))
	for _, c := range candidates {
		if inv, ok := c.(*InvitationCandidate); ok {
			out = append(out, inv)
		}
	}
	return out
}

// Memberships returns the membership variants of candidates, in order.
func Memberships(candidates []Candidate) []*MembershipCandidate {
	out := make([]*MembershipCandidate, 0, len(candidates))
	for _, c := range candidates {
		if m, ok := c.(*MembershipCandidate); ok {
			out = append(out, m)
		}
	}
	return out
}
