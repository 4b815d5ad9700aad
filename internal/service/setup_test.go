package service

import (
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/membership"
	"github.com/flexprice/deprovisioner/internal/plans"
	"github.com/flexprice/deprovisioner/internal/testutil"
	"github.com/flexprice/deprovisioner/internal/types"
)

// serviceTestSuite builds every service on top of the in-memory stores.
type serviceTestSuite struct {
	testutil.BaseServiceTestSuite

	params        ServiceParams
	selector      MemberSelectionService
	queue         DeprovisioningQueueService
	notifications NotificationService
	execution     ExecutionService
	changes       SubscriptionChangeService
	banners       BannerService
}

func (s *serviceTestSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()

	cfg := s.GetConfig()
	cfg.Plans.Limits = map[string]int{"none": 0, "free": 1, "starter": 3, "team": 5, "business": 10}

	s.params = ServiceParams{
		Logger:         s.GetLogger(),
		Config:         cfg,
		DB:             s.GetDB(),
		MembershipRepo: s.GetStores().MembershipRepo,
		QueueRepo:      s.GetStores().QueueRepo,
		Dispatcher:     s.GetDispatcher(),
		PlanLookup:     plans.NewLookup(plans.NewCatalog(cfg), s.GetLogger()),
		EventPublisher: s.GetPublisher(),
		Clock:          s.Clock(),
	}
	s.selector = NewMemberSelectionService(s.params)
	s.queue = NewDeprovisioningQueueService(s.params)
	s.notifications = NewNotificationService(s.params)
	s.execution = NewExecutionService(s.params, s.queue)
	s.changes = NewSubscriptionChangeService(s.params, s.selector, s.queue, s.notifications)
	s.banners = NewBannerService(s.params, s.queue)
}

// seedScenarioOrg stores org_1 with two invitations, the creator admin who
// joined on day 1 and members who joined on days 2 and 3.
func (s *serviceTestSuite) seedScenarioOrg() {
	day := func(n int) time.Time { return s.Now().AddDate(0, -1, n) }
	s.SeedOrganization(&membership.Organization{ID: "org_1", Name: "Acme", CreatorUserID: "u_admin"},
		&membership.Member{UserID: "u_admin", Email: "admin@acme.test", Name: "Ada", Role: types.MembershipRoleAdmin, JoinedAt: day(1), IsActive: true},
		&membership.Member{UserID: "u_day2", Email: "day2@acme.test", Name: "Bo", Role: types.MembershipRoleMember, JoinedAt: day(2), IsActive: true},
		&membership.Member{UserID: "u_day3", Email: "day3@acme.test", Name: "Cy", Role: types.MembershipRoleMember, JoinedAt: day(3), IsActive: true},
	)
	repo := s.GetStores().MembershipRepo
	repo.AddInvitation(&membership.Invitation{ID: "inv_1", OrganizationID: "org_1", Email: "i1@acme.test", CreatedAt: day(4)})
	repo.AddInvitation(&membership.Invitation{ID: "inv_2", OrganizationID: "org_1", Email: "i2@acme.test", CreatedAt: day(5)})
}
