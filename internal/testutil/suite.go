package testutil

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/domain/membership"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/suite"
)

// Stores groups the in-memory repositories used by service tests.
type Stores struct {
	MembershipRepo *InMemoryMembershipStore
	QueueRepo      *InMemoryDeprovisioningQueueStore
}

// BaseServiceTestSuite wires fresh in-memory dependencies for every test.
type BaseServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	stores     Stores
	db         *MockPostgresClient
	logger     *logger.Logger
	config     *config.Configuration
	dispatcher *RecordingDispatcher
	publisher  *RecordingPublisher
}

func (s *BaseServiceTestSuite) SetupTest() {
	s.ctx = SetupContext()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.stores = Stores{
		MembershipRepo: NewInMemoryMembershipStore(),
		QueueRepo:      NewInMemoryDeprovisioningQueueStore(),
	}
	s.db = NewMockPostgresClient()
	s.logger = logger.NewNopLogger()
	s.config = config.GetDefaultConfig()
	s.dispatcher = NewRecordingDispatcher()
	s.publisher = NewRecordingPublisher()
}

func (s *BaseServiceTestSuite) TearDownTest() {
	s.stores.MembershipRepo.Clear()
	s.stores.QueueRepo.Clear()
	s.dispatcher.Reset()
	s.publisher.Reset()
}

// SetupContext returns a context carrying a request id.
func SetupContext() context.Context {
	return context.WithValue(context.Background(), types.CtxRequestID, types.GenerateUUID())
}

func (s *BaseServiceTestSuite) GetContext() context.Context         { return s.ctx }
func (s *BaseServiceTestSuite) GetStores() Stores                   { return s.stores }
func (s *BaseServiceTestSuite) GetDB() *MockPostgresClient          { return s.db }
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger           { return s.logger }
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration    { return s.config }
func (s *BaseServiceTestSuite) GetDispatcher() *RecordingDispatcher { return s.dispatcher }
func (s *BaseServiceTestSuite) GetPublisher() *RecordingPublisher   { return s.publisher }

// Now is the pinned test time.
func (s *BaseServiceTestSuite) Now() time.Time { return s.now }

// Clock returns a clock pinned to Now. AdvanceTime moves it.
func (s *BaseServiceTestSuite) Clock() types.Clock {
	return func() time.Time { return s.now }
}

func (s *BaseServiceTestSuite) AdvanceTime(d time.Duration) {
	s.now = s.now.Add(d)
}

// SeedOrganization stores an organization with the given members.
func (s *BaseServiceTestSuite) SeedOrganization(org *membership.Organization, members ...*membership.Member) {
	s.stores.MembershipRepo.AddOrganization(org)
	for _, m := range members {
		if m.OrganizationID == "" {
			m.OrganizationID = org.ID
		}
		s.stores.MembershipRepo.AddMember(m)
	}
}
