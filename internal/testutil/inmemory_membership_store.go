package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/membership"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/samber/lo"
)

// InMemoryMembershipStore implements membership.Repository
type InMemoryMembershipStore struct {
	organizations *InMemoryStore[*membership.Organization]
	members       *InMemoryStore[*membership.Member]
	invitations   *InMemoryStore[*membership.Invitation]

	eventMu            sync.Mutex
	subscriptionEvents map[string]time.Time
}

func NewInMemoryMembershipStore() *InMemoryMembershipStore {
	return &InMemoryMembershipStore{
		organizations: NewInMemoryStore[*membership.Organization](),
		members:       NewInMemoryStore[*membership.Member](),
		invitations:   NewInMemoryStore[*membership.Invitation](),

		subscriptionEvents: make(map[string]time.Time),
	}
}

var _ membership.Repository = (*InMemoryMembershipStore)(nil)

func memberKey(organizationID, userID string) string {
	return organizationID + "/" + userID
}

func copyMember(m *membership.Member) *membership.Member {
	if m == nil {
		return nil
	}
	c := *m
	if m.DeactivatedAt != nil {
		c.DeactivatedAt = lo.ToPtr(*m.DeactivatedAt)
	}
	return &c
}

// AddOrganization seeds an organization.
func (s *InMemoryMembershipStore) AddOrganization(org *membership.Organization) {
	c := *org
	_ = s.organizations.Create(context.Background(), org.ID, &c)
}

// AddMember seeds a membership.
func (s *InMemoryMembershipStore) AddMember(m *membership.Member) {
	_ = s.members.Create(context.Background(), memberKey(m.OrganizationID, m.UserID), copyMember(m))
}

// AddInvitation seeds a pending invitation.
func (s *InMemoryMembershipStore) AddInvitation(inv *membership.Invitation) {
	c := *inv
	_ = s.invitations.Create(context.Background(), inv.ID, &c)
}

// RemoveMember deletes a membership outright, as if the user left.
func (s *InMemoryMembershipStore) RemoveMember(organizationID, userID string) {
	_ = s.members.Delete(context.Background(), memberKey(organizationID, userID))
}

func (s *InMemoryMembershipStore) GetOrganization(ctx context.Context, organizationID string) (*membership.Organization, error) {
	org, err := s.organizations.Get(ctx, organizationID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Organization %s not found", organizationID).
			Mark(ierr.ErrNotFound)
	}
	c := *org
	return &c, nil
}

func (s *InMemoryMembershipStore) GetSnapshot(ctx context.Context, organizationID string) (*membership.Snapshot, error) {
	org, err := s.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	members, err := s.listMembers(ctx, organizationID, false)
	if err != nil {
		return nil, err
	}

	invitations, err := s.invitations.List(ctx, organizationID, func(_ context.Context, inv *membership.Invitation, f interface{}) bool {
		return inv.OrganizationID == f.(string)
	}, func(i, j *membership.Invitation) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	return &membership.Snapshot{
		Organization: org,
		Members:      members,
		Invitations: lo.Map(invitations, func(inv *membership.Invitation, _ int) *membership.Invitation {
			c := *inv
			return &c
		}),
	}, nil
}

func (s *InMemoryMembershipStore) GetMember(ctx context.Context, organizationID, userID string) (*membership.Member, error) {
	m, err := s.members.Get(ctx, memberKey(organizationID, userID))
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Membership not found").
			Mark(ierr.ErrNotFound)
	}
	return copyMember(m), nil
}

func (s *InMemoryMembershipStore) ListAdmins(ctx context.Context, organizationID string) ([]*membership.Member, error) {
	return s.listMembers(ctx, organizationID, true)
}

func (s *InMemoryMembershipStore) DeleteInvitations(ctx context.Context, organizationID string, invitationIDs []string) (int, error) {
	deleted := 0
	err := s.invitations.Mutate(func(items map[string]*membership.Invitation) error {
		for _, id := range invitationIDs {
			if inv, ok := items[id]; ok && inv.OrganizationID == organizationID {
				delete(items, id)
				deleted++
			}
		}
		return nil
	})
	return deleted, err
}

func (s *InMemoryMembershipStore) Deactivate(ctx context.Context, organizationID, userID string, at time.Time) (bool, error) {
	changed := false
	err := s.members.Mutate(func(items map[string]*membership.Member) error {
		m, ok := items[memberKey(organizationID, userID)]
		if !ok || !m.IsActive {
			return nil
		}
		m.IsActive = false
		m.DeactivatedAt = lo.ToPtr(at)
		changed = true
		return nil
	})
	return changed, err
}

func (s *InMemoryMembershipStore) ClaimSubscriptionEvent(ctx context.Context, organizationID string, eventAt time.Time) (bool, error) {
	if _, err := s.GetOrganization(ctx, organizationID); err != nil {
		return false, err
	}

	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	if last, ok := s.subscriptionEvents[organizationID]; ok && eventAt.Before(last) {
		return false, nil
	}
	s.subscriptionEvents[organizationID] = eventAt
	return true, nil
}

func (s *InMemoryMembershipStore) listMembers(ctx context.Context, organizationID string, adminsOnly bool) ([]*membership.Member, error) {
	members, err := s.members.List(ctx, organizationID, func(_ context.Context, m *membership.Member, f interface{}) bool {
		return m.OrganizationID == f.(string) && m.IsActive && (!adminsOnly || m.IsAdmin())
	}, func(i, j *membership.Member) bool {
		if i.JoinedAt.Equal(j.JoinedAt) {
			return i.UserID < j.UserID
		}
		return i.JoinedAt.Before(j.JoinedAt)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(members, func(m *membership.Member, _ int) *membership.Member { return copyMember(m) }), nil
}

func (s *InMemoryMembershipStore) Clear() {
	s.organizations.Clear()
	s.members.Clear()
	s.invitations.Clear()

	s.eventMu.Lock()
	s.subscriptionEvents = make(map[string]time.Time)
	s.eventMu.Unlock()
}
