package service

import (
	"errors"
	"testing"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/membership"
	"github.com/flexprice/deprovisioner/internal/domain/notification"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/suite"
)

type NotificationServiceSuite struct {
	serviceTestSuite
}

func TestNotificationService(t *testing.T) {
	suite.Run(t, new(NotificationServiceSuite))
}

func (s *NotificationServiceSuite) SetupTest() {
	s.serviceTestSuite.SetupTest()
	s.seedScenarioOrg()
	s.GetStores().MembershipRepo.AddMember(&membership.Member{
		OrganizationID: "org_1", UserID: "u_admin2", Email: "second@acme.test", Name: "Dee",
		Role: types.MembershipRoleAdmin, JoinedAt: s.Now().Add(-time.Hour), IsActive: true,
	})
}

func (s *NotificationServiceSuite) TestSendsToEveryAdmin() {
	result, err := s.notifications.NotifyAdmins(s.GetContext(), "org_1", types.NotificationTemplateReminder,
		notification.TemplateData{DaysRemaining: 7})
	s.Require().NoError(err)
	s.Equal(&NotifyResult{Attempted: 2, Delivered: 2}, result)

	msgs := s.GetDispatcher().ByTemplate(types.NotificationTemplateReminder)
	s.Require().Len(msgs, 2)
	s.Equal("Acme", msgs[0].OrganizationName)
	s.Equal(7, msgs[0].Data.DaysRemaining)
}

func (s *NotificationServiceSuite) TestOneFailureDoesNotStopOthers() {
	s.GetDispatcher().FailFor["admin@acme.test"] = errors.New("smtp down")

	result, err := s.notifications.NotifyAdmins(s.GetContext(), "org_1", types.NotificationTemplateFinalWarning,
		notification.TemplateData{HoursRemaining: 24})
	s.Require().NoError(err)
	s.Equal(1, result.Delivered)
	s.Equal(1, result.Failed)
	s.Len(s.GetDispatcher().Messages(), 1)
	s.Equal("second@acme.test", s.GetDispatcher().Messages()[0].AdminEmail)
}

func (s *NotificationServiceSuite) TestDeactivatedAdminsAreSkipped() {
	_, err := s.GetStores().MembershipRepo.Deactivate(s.GetContext(), "org_1", "u_admin2", s.Now())
	s.Require().NoError(err)

	result, err := s.notifications.NotifyAdmins(s.GetContext(), "org_1", types.NotificationTemplateRemovalCompleted,
		notification.TemplateData{Count: 1})
	s.Require().NoError(err)
	s.Equal(1, result.Attempted)
}

func (s *NotificationServiceSuite) TestUnknownOrganization() {
	_, err := s.notifications.NotifyAdmins(s.GetContext(), "missing", types.NotificationTemplateReminder, notification.TemplateData{})
	s.Error(err)
}
