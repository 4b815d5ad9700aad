package service

import (
	"errors"
	"testing"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/suite"
)

type SubscriptionChangeServiceSuite struct {
	serviceTestSuite
}

func TestSubscriptionChangeService(t *testing.T) {
	suite.Run(t, new(SubscriptionChangeServiceSuite))
}

func (s *SubscriptionChangeServiceSuite) SetupTest() {
	s.serviceTestSuite.SetupTest()
	s.seedScenarioOrg()
}

func (s *SubscriptionChangeServiceSuite) change(oldProduct, newProduct string) *SubscriptionChangeResult {
	result, err := s.changes.HandleSubscriptionChange(s.GetContext(), &SubscriptionChangeRequest{
		OrganizationID: "org_1",
		OldProductID:   oldProduct,
		NewProductID:   newProduct,
		EventAt:        s.Now(),
	})
	s.Require().NoError(err)
	return result
}

func (s *SubscriptionChangeServiceSuite) TestDowngradeDeletesInvitationsAndQueuesMembers() {
	result := s.change("team", "free")

	s.Equal(SubscriptionChangeOutcomeDowngrade, result.Outcome)
	s.Equal(2, result.InvitationsRemoved)
	s.Len(result.QueueEntryIDs, 2)
	s.False(result.RequiresManualIntervention)

	snapshot, err := s.GetStores().MembershipRepo.GetSnapshot(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Empty(snapshot.Invitations)
	s.Len(snapshot.Members, 3, "members stay active during the grace period")

	entries, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.ElementsMatch([]string{"u_day2", "u_day3"}, []string{entries[0].UserID, entries[1].UserID})

	scheduled := s.GetPublisher().ByName(types.EventDeprovisioningScheduled)
	s.Require().Len(scheduled, 1)
	event := scheduled[0].(*events.DeprovisioningScheduled)
	s.Equal(result.BatchID, event.BatchID)
	s.ElementsMatch(result.QueueEntryIDs, event.QueueEntryIDs)
}

func (s *SubscriptionChangeServiceSuite) TestInvitationsOnlyDowngradeStartsNoWorkflow() {
	result := s.change("team", "starter")

	s.Equal(2, result.InvitationsRemoved)
	s.Empty(result.QueueEntryIDs)
	s.Empty(s.GetPublisher().Events())
}

func (s *SubscriptionChangeServiceSuite) TestCanceledSubscriptionKeepsOneMember() {
	result := s.change("team", "")

	s.Equal(1, result.NewLimit)
	s.Equal(4, result.Stats.ExcessCount)

	entries, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Len(entries, 2)
	for _, e := range entries {
		s.Equal(types.DeprovisioningReasonSubscriptionCancelled, e.Reason)
	}
}

func (s *SubscriptionChangeServiceSuite) TestManualInterventionIsSurfaced() {
	result := s.change("team", "none")

	s.True(result.RequiresManualIntervention)
	s.Contains(result.InterventionReason, "minimum admin rule")
	s.Equal(5, result.Stats.ExcessCount)
	s.Len(result.QueueEntryIDs, 2, "removable members are still queued")
	s.Equal(2, result.InvitationsRemoved)
}

func (s *SubscriptionChangeServiceSuite) TestUpgradeCancelsRemindedEntries() {
	s.change("team", "free")
	pending, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	for _, e := range pending {
		for _, st := range []types.QueueStatus{types.QueueStatusNotifiedOnce, types.QueueStatusNotifiedReminder} {
			_, err := s.queue.AdvanceNotification(s.GetContext(), e.ID, st, s.Now())
			s.Require().NoError(err)
		}
	}
	s.GetDispatcher().Reset()

	result := s.change("free", "business")
	s.Equal(SubscriptionChangeOutcomeUpgrade, result.Outcome)
	s.Equal(2, result.CanceledCount)

	entries, err := s.queue.ListEntries(s.GetContext(), &deprovisioning.Filter{OrganizationID: "org_1"})
	s.Require().NoError(err)
	for _, e := range entries {
		s.Equal(types.QueueStatusCanceledUpgrade, e.Status)
		s.Equal(2, e.NotificationsSent)
	}

	canceledMails := s.GetDispatcher().ByTemplate(types.NotificationTemplateRemovalCanceled)
	s.Require().Len(canceledMails, 1, "one per active admin")
	s.Equal(2, canceledMails[0].Data.Count)
	s.Len(s.GetDispatcher().Messages(), 1)

	canceled := s.GetPublisher().ByName(types.EventDeprovisioningCanceled)
	s.Require().Len(canceled, 1)
	s.Equal("org_1", canceled[0].GetOrganizationID())
	s.Len(canceled[0].(*events.DeprovisioningCanceled).BatchIDs, 1)
}

func (s *SubscriptionChangeServiceSuite) TestUpgradeWithNothingQueuedIsQuiet() {
	result := s.change("starter", "business")
	s.Equal(0, result.CanceledCount)
	s.Empty(s.GetDispatcher().Messages())
	s.Empty(s.GetPublisher().Events())
}

func (s *SubscriptionChangeServiceSuite) TestUnchangedAndUnknownPlans() {
	s.Equal(SubscriptionChangeOutcomeNoChange, s.change("team", "team").Outcome)
	s.Equal(SubscriptionChangeOutcomeUnknownPlan, s.change("team", "enterprise").Outcome)

	pending, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *SubscriptionChangeServiceSuite) TestOlderEventAfterNewerIsIgnored() {
	upgrade, err := s.changes.HandleSubscriptionChange(s.GetContext(), &SubscriptionChangeRequest{
		OrganizationID: "org_1", OldProductID: "team", NewProductID: "business",
		EventAt: s.Now().Add(time.Minute),
	})
	s.Require().NoError(err)
	s.Equal(SubscriptionChangeOutcomeUpgrade, upgrade.Outcome)

	// the downgrade was emitted first but delivered late
	late, err := s.changes.HandleSubscriptionChange(s.GetContext(), &SubscriptionChangeRequest{
		OrganizationID: "org_1", OldProductID: "team", NewProductID: "free",
		EventAt: s.Now(),
	})
	s.Require().NoError(err)
	s.Equal(SubscriptionChangeOutcomeStale, late.Outcome)
	s.Equal(0, late.InvitationsRemoved)
	s.Empty(late.QueueEntryIDs)

	snapshot, err := s.GetStores().MembershipRepo.GetSnapshot(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Len(snapshot.Invitations, 2)

	entries, err := s.queue.ListEntries(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Empty(entries)
	s.Empty(s.GetPublisher().ByName(types.EventDeprovisioningScheduled))
	s.Contains(s.GetDB().Locks(), "deprovisioning_organization:organization_id=org_1")
}

func (s *SubscriptionChangeServiceSuite) TestRedeliveredEventIsApplied() {
	first := s.change("team", "free")
	s.Equal(SubscriptionChangeOutcomeDowngrade, first.Outcome)

	again := s.change("team", "free")
	s.Equal(SubscriptionChangeOutcomeDowngrade, again.Outcome)
	s.Len(again.QueueEntryIDs, 2)

	pending, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Len(pending, 2)
}

func (s *SubscriptionChangeServiceSuite) TestSelectionFailureQueuesNothing() {
	_, err := s.changes.HandleSubscriptionChange(s.GetContext(), &SubscriptionChangeRequest{
		OrganizationID: "missing", OldProductID: "team", NewProductID: "free",
	})
	s.Error(err)
	entries, err := s.queue.ListEntries(s.GetContext(), nil)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *SubscriptionChangeServiceSuite) TestPublishFailureIsReturned() {
	s.GetPublisher().Err = errors.New("broker unavailable")
	_, err := s.changes.HandleSubscriptionChange(s.GetContext(), &SubscriptionChangeRequest{
		OrganizationID: "org_1", OldProductID: "team", NewProductID: "free",
	})
	s.Error(err)
}
