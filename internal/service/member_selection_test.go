package service

import (
	"testing"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/selection"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type MemberSelectionServiceSuite struct {
	serviceTestSuite
}

func TestMemberSelectionService(t *testing.T) {
	suite.Run(t, new(MemberSelectionServiceSuite))
}

func (s *MemberSelectionServiceSuite) TestInvitationsOnly() {
	s.seedScenarioOrg()

	result, err := s.selector.SelectMembersForRemoval(s.GetContext(), &SelectionRequest{
		OrganizationID:    "org_1",
		NewAllowedMembers: 3,
	})
	s.Require().NoError(err)
	s.False(result.RequiresManualIntervention)
	s.Len(result.ToRemove, 2)
	s.Len(selection.Invitations(result.ToRemove), 2)
	s.Equal(5, result.Stats.CurrentTotal)
}

func (s *MemberSelectionServiceSuite) TestNewestMemberAfterInvitations() {
	s.seedScenarioOrg()

	result, err := s.selector.SelectMembersForRemoval(s.GetContext(), &SelectionRequest{
		OrganizationID:    "org_1",
		NewAllowedMembers: 2,
	})
	s.Require().NoError(err)
	s.False(result.RequiresManualIntervention)
	members := selection.Memberships(result.ToRemove)
	s.Require().Len(members, 1)
	s.Equal("u_day3", members[0].UserID)
}

func (s *MemberSelectionServiceSuite) TestOverridesConfiguredMinimumAdmins() {
	s.seedScenarioOrg()

	result, err := s.selector.SelectMembersForRemoval(s.GetContext(), &SelectionRequest{
		OrganizationID:    "org_1",
		NewAllowedMembers: 0,
		MinimumAdmins:     lo.ToPtr(0),
	})
	s.Require().NoError(err)
	s.False(result.RequiresManualIntervention)
	s.Len(result.ToRemove, 5)
	s.Equal(1, result.Stats.AdminsAffected)
}

func (s *MemberSelectionServiceSuite) TestProtectCreatorFromRequest() {
	s.seedScenarioOrg()

	result, err := s.selector.SelectMembersForRemoval(s.GetContext(), &SelectionRequest{
		OrganizationID:    "org_1",
		NewAllowedMembers: 0,
		MinimumAdmins:     lo.ToPtr(0),
		ProtectCreator:    lo.ToPtr(true),
	})
	s.Require().NoError(err)
	s.True(result.RequiresManualIntervention)
	s.Len(result.ToRemove, 4)
	s.Contains(result.InterventionReason, "creator")
}

func (s *MemberSelectionServiceSuite) TestUnknownOrganization() {
	_, err := s.selector.SelectMembersForRemoval(s.GetContext(), &SelectionRequest{OrganizationID: "missing"})
	s.True(ierr.IsNotFound(err))

	_, err = s.selector.SelectMembersForRemoval(s.GetContext(), &SelectionRequest{})
	s.True(ierr.IsValidation(err))
}
