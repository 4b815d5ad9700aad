// Package selection decides which invitations and memberships to remove when
// an organization's member limit drops. It performs no I/O.
package selection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flexprice/deprovisioner/internal/domain/membership"
)

// Options tunes the removal policy.
type Options struct {
	NewAllowedMembers int

	// ProtectCreator excludes the organization creator from the removable
	// admins. Without it the creator is only protected by tenure.
	ProtectCreator bool

	// MinimumAdmins is the number of admins that must survive.
	MinimumAdmins int
}

// Stats summarises a plan.
type Stats struct {
	CurrentTotal        int `json:"current_total"`
	NewLimit            int `json:"new_limit"`
	ExcessCount         int `json:"excess_count"`
	InvitationsToRemove int `json:"invitations_to_remove"`
	MembershipsToRemove int `json:"memberships_to_remove"`
	AdminsAffected      int `json:"admins_affected"`
}

// Result is the ordered removal plan.
type Result struct {
	ToRemove                   []Candidate
	RequiresManualIntervention bool
	InterventionReason         string
	Stats                      Stats
}

// Plan computes the removal plan for snapshot.
//
// Invitations go first, then members newest joined first, then admins newest
// joined first up to adminCount - MinimumAdmins. The first excess candidates
// are taken; when that is not enough the result asks for manual intervention.
func Plan(snapshot *membership.Snapshot, opts Options) *Result {
	newLimit := max(opts.NewAllowedMembers, 0)
	minimumAdmins := max(opts.MinimumAdmins, 0)

	currentTotal := snapshot.CurrentTotal()
	excess := currentTotal - newLimit

	result := &Result{
		ToRemove: []Candidate{},
		Stats: Stats{
			CurrentTotal: currentTotal,
			NewLimit:     newLimit,
			ExcessCount:  max(excess, 0),
		},
	}
	if excess <= 0 {
		return result
	}

	candidates := make([]Candidate, 0, currentTotal)
	for _, inv := range snapshot.Invitations {
		candidates = append(candidates, &InvitationCandidate{
			InvitationID: inv.ID,
			Email:        inv.Email,
			CreatedAt:    inv.CreatedAt,
			reason:       "pending invitation",
		})
	}

	var members, admins []*membership.Member
	for _, m := range snapshot.Members {
		if m.IsAdmin() {
			admins = append(admins, m)
		} else {
			members = append(members, m)
		}
	}
	sortNewestFirst(members)
	sortNewestFirst(admins)

	for _, m := range members {
		candidates = append(candidates, newMembershipCandidate(snapshot, m, PriorityMember, "newest member"))
	}

	adminBudget := max(len(admins)-minimumAdmins, 0)
	creatorExcluded := false
	removableAdmins := 0
	for _, m := range admins {
		if removableAdmins >= adminBudget {
			break
		}
		isCreator := snapshot.IsCreator(m.UserID)
		if isCreator && opts.ProtectCreator {
			creatorExcluded = true
			continue
		}
		reason := "newest admin above the admin floor"
		if isCreator {
			reason = "organization creator, newest admin above the admin floor"
		}
		candidates = append(candidates, newMembershipCandidate(snapshot, m, PriorityAdmin, reason))
		removableAdmins++
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority() < candidates[j].Priority()
	})

	if len(candidates) > excess {
		candidates = candidates[:excess]
	}
	result.ToRemove = candidates

	for _, c := range candidates {
		switch v := c.(type) {
		case *InvitationCandidate:
			result.Stats.InvitationsToRemove++
		case *MembershipCandidate:
			result.Stats.MembershipsToRemove++
			if v.Role.IsAdmin() {
				result.Stats.AdminsAffected++
			}
		}
	}

	if len(candidates) < excess {
		result.RequiresManualIntervention = true
		result.InterventionReason = interventionReason(excess-len(candidates), minimumAdmins, creatorExcluded)
	}

	return result
}

func newMembershipCandidate(snapshot *membership.Snapshot, m *membership.Member, priority int, reason string) *MembershipCandidate {
	return &MembershipCandidate{
		UserID:    m.UserID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      m.Role,
		JoinedAt:  m.JoinedAt,
		IsCreator: snapshot.IsCreator(m.UserID),
		priority:  priority,
		reason:    reason,
	}
}

// sortNewestFirst orders by join time descending. Ties keep input order.
func sortNewestFirst(members []*membership.Member) {
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].JoinedAt.After(members[j].JoinedAt)
	})
}

func interventionReason(shortfall, minimumAdmins int, creatorExcluded bool) string {
	parts := []string{
		fmt.Sprintf("%d more seat(s) must be freed manually: minimum admin rule requires at least %d admin(s) to remain", shortfall, minimumAdmins),
	}
	if creatorExcluded {
		parts = append(parts, "the organization creator is protected from removal")
	}
	return strings.Join(parts, "; ")
}
