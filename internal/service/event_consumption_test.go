package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/pubsub/memory"
	pubsubRouter "github.com/flexprice/deprovisioner/internal/pubsub/router"
	"github.com/flexprice/deprovisioner/internal/temporal/models"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/suite"
)

type fakeWorkflows struct {
	mu       sync.Mutex
	started  []models.DeprovisioningWorkflowInput
	canceled []events.DeprovisioningCanceled
	err      error
}

func (f *fakeWorkflows) StartDeprovisioning(_ context.Context, input models.DeprovisioningWorkflowInput) (*models.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, input)
	return &models.WorkflowRun{WorkflowID: input.WorkflowID(), RunID: "run_1"}, nil
}

func (f *fakeWorkflows) CancelDeprovisioning(_ context.Context, organizationID string, batchIDs []string, status types.QueueStatus) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.canceled = append(f.canceled, events.DeprovisioningCanceled{OrganizationID: organizationID, BatchIDs: batchIDs, Status: status})
	return len(batchIDs), nil
}

type EventConsumptionServiceSuite struct {
	serviceTestSuite
	workflows *fakeWorkflows
	consumer  *eventConsumptionService
}

func TestEventConsumptionService(t *testing.T) {
	suite.Run(t, new(EventConsumptionServiceSuite))
}

func (s *EventConsumptionServiceSuite) SetupTest() {
	s.serviceTestSuite.SetupTest()
	s.seedScenarioOrg()
	s.workflows = &fakeWorkflows{}
	s.consumer = NewEventConsumptionService(s.params, s.changes, s.queue, s.workflows).(*eventConsumptionService)
}

func (s *EventConsumptionServiceSuite) message(event events.Event) *message.Message {
	msg, err := events.NewMessage(s.GetContext(), event)
	s.Require().NoError(err)
	return msg
}

func (s *EventConsumptionServiceSuite) TestSubscriptionChangeQueuesAndStartsWorkflow() {
	err := s.consumer.processSubscriptionChange(s.message(&events.SubscriptionChanged{
		OrganizationID: "org_1",
		OldProductID:   "team",
		NewProductID:   "free",
		EventAt:        s.Now().Unix(),
	}))
	s.Require().NoError(err)

	pending, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Len(pending, 2)

	scheduled := s.GetPublisher().ByName(types.EventDeprovisioningScheduled)
	s.Require().Len(scheduled, 1)

	s.Require().NoError(s.consumer.processDeprovisioningEvent(s.message(scheduled[0])))
	s.Require().Len(s.workflows.started, 1)
	s.Equal("org_1", s.workflows.started[0].OrganizationID)
	s.Equal(pending[0].BatchID, s.workflows.started[0].BatchID)
	s.Len(s.workflows.started[0].QueueEntryIDs, 2)
}

func (s *EventConsumptionServiceSuite) TestMalformedMessagesAreAcked() {
	msg := message.NewMessage("m1", []byte("{not json"))
	msg.Metadata.Set(types.MetadataEventName, string(types.EventSubscriptionChanged))
	s.NoError(s.consumer.processSubscriptionChange(msg))

	invalid := s.message(&events.SubscriptionChanged{OldProductID: "team"})
	s.NoError(s.consumer.processSubscriptionChange(invalid))

	pending, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *EventConsumptionServiceSuite) TestCancelEventSignalsBatches() {
	err := s.consumer.processDeprovisioningEvent(s.message(&events.DeprovisioningCanceled{
		OrganizationID: "org_1",
		BatchIDs:       []string{"dpb_1"},
		Status:         types.QueueStatusCanceledUpgrade,
	}))
	s.Require().NoError(err)
	s.Require().Len(s.workflows.canceled, 1)
	s.Equal([]string{"dpb_1"}, s.workflows.canceled[0].BatchIDs)
}

func (s *EventConsumptionServiceSuite) TestTransientFailuresAreRetried() {
	s.workflows.err = ierr.WithError(errors.New("temporal unavailable")).Mark(ierr.ErrSystem)

	err := s.consumer.processDeprovisioningEvent(s.message(&events.DeprovisioningScheduled{
		OrganizationID: "org_1",
		BatchID:        "dpb_1",
	}))
	s.Error(err)
}

func (s *EventConsumptionServiceSuite) TestUnknownEventIsIgnored() {
	msg := message.NewMessage("m1", []byte(`{}`))
	msg.Metadata.Set(types.MetadataEventName, "deprovisioning.unknown")
	s.NoError(s.consumer.processDeprovisioningEvent(msg))
	s.NoError(s.consumer.processMembershipEvent(msg))
}

func (s *EventConsumptionServiceSuite) TestMemberLeftThroughRouter() {
	s.change("team", "free")
	pending, err := s.queue.GetPending(s.GetContext(), "org_1")
	s.Require().NoError(err)
	s.Require().Len(pending, 2)

	pubSub := memory.NewPubSub(s.GetLogger())
	router, err := pubsubRouter.NewRouter(s.GetLogger(), nil)
	s.Require().NoError(err)
	s.consumer.RegisterHandlers(router, pubSub)

	ctx, cancel := context.WithCancel(s.GetContext())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()
	defer router.Close()

	publisher := events.NewPublisher(pubSub, s.GetConfig(), s.GetLogger())
	s.Require().NoError(publisher.Publish(s.GetContext(), &events.MembershipLeft{OrganizationID: "org_1", UserID: "u_day3"}))

	s.Eventually(func() bool {
		entry, err := s.GetStores().QueueRepo.GetByOrganizationAndUser(s.GetContext(), "org_1", "u_day3")
		return err == nil && entry.Status == types.QueueStatusCanceledUserLeft
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *EventConsumptionServiceSuite) change(oldProduct, newProduct string) {
	_, err := s.changes.HandleSubscriptionChange(s.GetContext(), &SubscriptionChangeRequest{
		OrganizationID: "org_1",
		OldProductID:   oldProduct,
		NewProductID:   newProduct,
		EventAt:        s.Now(),
	})
	s.Require().NoError(err)
}
