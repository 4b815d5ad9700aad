package service

import (
	"context"
	"testing"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/membership"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/selection"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/suite"
)

type ExecutionServiceSuite struct {
	serviceTestSuite
}

func TestExecutionService(t *testing.T) {
	suite.Run(t, new(ExecutionServiceSuite))
}

// finalEntry queues userID and walks it to NOTIFIED_FINAL.
func (s *ExecutionServiceSuite) finalEntry(userID string) string {
	result, err := s.queue.UpsertEntries(s.GetContext(), &UpsertEntriesRequest{
		OrganizationID: "org_1",
		Candidates:     []*selection.MembershipCandidate{{UserID: userID}},
		Reason:         types.DeprovisioningReasonSubscriptionDowngrade,
	})
	s.Require().NoError(err)
	id := result.IDs[0]
	for _, st := range []types.QueueStatus{types.QueueStatusNotifiedOnce, types.QueueStatusNotifiedReminder, types.QueueStatusNotifiedFinal} {
		_, err := s.queue.AdvanceNotification(s.GetContext(), id, st, s.Now())
		s.Require().NoError(err)
	}
	return id
}

func (s *ExecutionServiceSuite) TestDeactivatesDueMembership() {
	s.seedScenarioOrg()
	id := s.finalEntry("u_day3")
	s.AdvanceTime(14 * 24 * time.Hour)

	result, err := s.execution.ExecuteDeactivation(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.ExecutionOutcomeDeactivated, result.Outcome)
	s.Equal("u_day3", result.UserID)
	s.True(result.Succeeded())

	member, err := s.GetStores().MembershipRepo.GetMember(s.GetContext(), "org_1", "u_day3")
	s.Require().NoError(err)
	s.False(member.IsActive)
	s.NotNil(member.DeactivatedAt)

	entry, err := s.queue.GetEntry(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.QueueStatusCompleted, entry.Status)
}

func (s *ExecutionServiceSuite) TestConcurrentRunCompletesFirst() {
	s.seedScenarioOrg()
	id := s.finalEntry("u_day3")
	s.AdvanceTime(14 * 24 * time.Hour)

	// the other run takes the membership lock first and finishes the entry
	var competing *ExecutionResult
	s.GetDB().OnNextLock(func(ctx context.Context, _ string) {
		res, err := s.execution.ExecuteDeactivation(ctx, id)
		s.Require().NoError(err)
		competing = res
	})

	result, err := s.execution.ExecuteDeactivation(s.GetContext(), id)
	s.Require().NoError(err)
	s.Require().NotNil(competing)
	s.Equal(types.ExecutionOutcomeDeactivated, competing.Outcome)
	s.Equal(types.ExecutionOutcomeNoop, result.Outcome)
	s.Equal("queue entry already completed", result.Message)
	s.Contains(s.GetDB().Locks()[len(s.GetDB().Locks())-1], "u_day3")
}

func (s *ExecutionServiceSuite) TestIdempotentAfterDeactivation() {
	s.seedScenarioOrg()
	id := s.finalEntry("u_day3")
	s.AdvanceTime(14 * 24 * time.Hour)

	_, err := s.GetStores().MembershipRepo.Deactivate(s.GetContext(), "org_1", "u_day3", s.Now())
	s.Require().NoError(err)

	for i := 0; i < 2; i++ {
		result, err := s.execution.ExecuteDeactivation(s.GetContext(), id)
		s.Require().NoError(err)
		s.Equal(types.ExecutionOutcomeNoop, result.Outcome)
		s.True(result.Succeeded())
	}

	entry, err := s.queue.GetEntry(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.QueueStatusCompleted, entry.Status)
}

func (s *ExecutionServiceSuite) TestMissingMembershipIsNoop() {
	s.seedScenarioOrg()
	id := s.finalEntry("u_day2")
	s.GetStores().MembershipRepo.RemoveMember("org_1", "u_day2")
	s.AdvanceTime(14 * 24 * time.Hour)

	result, err := s.execution.ExecuteDeactivation(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.ExecutionOutcomeNoop, result.Outcome)
}

func (s *ExecutionServiceSuite) TestNeverExecutesEarly() {
	s.seedScenarioOrg()
	id := s.finalEntry("u_day3")

	result, err := s.execution.ExecuteDeactivationAt(s.GetContext(), id, s.Now().Add(13*24*time.Hour))
	s.Require().NoError(err)
	s.Equal(types.ExecutionOutcomeSkipped, result.Outcome)
	s.False(result.Succeeded())

	member, err := s.GetStores().MembershipRepo.GetMember(s.GetContext(), "org_1", "u_day3")
	s.Require().NoError(err)
	s.True(member.IsActive)
}

func (s *ExecutionServiceSuite) TestSkipsCanceledEntry() {
	s.seedScenarioOrg()
	id := s.finalEntry("u_day3")
	_, err := s.queue.Cancel(s.GetContext(), id, types.QueueStatusCanceledManual)
	s.Require().NoError(err)
	s.AdvanceTime(15 * 24 * time.Hour)

	result, err := s.execution.ExecuteDeactivation(s.GetContext(), id)
	s.Require().NoError(err)
	s.Equal(types.ExecutionOutcomeSkipped, result.Outcome)
}

func (s *ExecutionServiceSuite) TestUnknownEntry() {
	_, err := s.execution.ExecuteDeactivation(s.GetContext(), "dpq_missing")
	s.True(ierr.IsNotFound(err))
}

func (s *ExecutionServiceSuite) TestSoftDeactivationKeepsMembership() {
	s.SeedOrganization(&membership.Organization{ID: "org_1", Name: "Acme"},
		&membership.Member{UserID: "u1", Role: types.MembershipRoleMember, JoinedAt: s.Now(), IsActive: true})
	id := s.finalEntry("u1")
	s.AdvanceTime(14 * 24 * time.Hour)

	_, err := s.execution.ExecuteDeactivation(s.GetContext(), id)
	s.Require().NoError(err)

	member, err := s.GetStores().MembershipRepo.GetMember(s.GetContext(), "org_1", "u1")
	s.Require().NoError(err)
	s.Equal("u1", member.UserID)
	s.False(member.IsActive)
}
