package service

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/events"
	pubsubRouter "github.com/flexprice/deprovisioner/internal/pubsub/router"
	"github.com/flexprice/deprovisioner/internal/temporal/models"
	"github.com/flexprice/deprovisioner/internal/types"
)

// DeprovisioningWorkflows starts and cancels deprovisioning workflows.
type DeprovisioningWorkflows interface {
	StartDeprovisioning(ctx context.Context, input models.DeprovisioningWorkflowInput) (*models.WorkflowRun, error)
	CancelDeprovisioning(ctx context.Context, organizationID string, batchIDs []string, status types.QueueStatus) (int, error)
}

// EventConsumptionService consumes the subscription, deprovisioning and
// membership topics.
type EventConsumptionService interface {
	RegisterHandlers(router *pubsubRouter.Router, subscriber message.Subscriber)
}

type eventConsumptionService struct {
	ServiceParams
	changes   SubscriptionChangeService
	queue     DeprovisioningQueueService
	workflows DeprovisioningWorkflows
}

func NewEventConsumptionService(
	params ServiceParams,
	changes SubscriptionChangeService,
	queue DeprovisioningQueueService,
	workflows DeprovisioningWorkflows,
) EventConsumptionService {
	return &eventConsumptionService{
		ServiceParams: params,
		changes:       changes,
		queue:         queue,
		workflows:     workflows,
	}
}

func (s *eventConsumptionService) RegisterHandlers(router *pubsubRouter.Router, subscriber message.Subscriber) {
	cfg := s.Config.PubSub
	router.AddNoPublisherHandler("subscription_change_handler", cfg.SubscriptionChangesTopic, subscriber, s.processSubscriptionChange)
	router.AddNoPublisherHandler("deprovisioning_workflow_handler", cfg.DeprovisioningEventsTopic, subscriber, s.processDeprovisioningEvent)
	router.AddNoPublisherHandler("membership_event_handler", cfg.MembershipEventsTopic, subscriber, s.processMembershipEvent)
}

func (s *eventConsumptionService) processSubscriptionChange(msg *message.Message) error {
	ctx := messageContext(msg)

	var event events.SubscriptionChanged
	if err := events.Decode(msg, &event); err != nil {
		return s.settle(ctx, msg, err)
	}
	if err := event.Validate(); err != nil {
		return s.settle(ctx, msg, err)
	}
	ctx = types.WithOrganizationID(ctx, event.OrganizationID)

	result, err := s.changes.HandleSubscriptionChange(ctx, NewSubscriptionChangeRequest(&event))
	if err != nil {
		return s.settle(ctx, msg, err)
	}

	s.Logger.WithContext(ctx).Infow("processed subscription change",
		"message_uuid", msg.UUID,
		"outcome", result.Outcome,
		"queued", len(result.QueueEntryIDs),
		"canceled", result.CanceledCount)
	return nil
}

func (s *eventConsumptionService) processDeprovisioningEvent(msg *message.Message) error {
	ctx := messageContext(msg)

	switch name := events.EventNameOf(msg); name {
	case types.EventDeprovisioningScheduled:
		var event events.DeprovisioningScheduled
		if err := events.Decode(msg, &event); err != nil {
			return s.settle(ctx, msg, err)
		}
		ctx = types.WithOrganizationID(ctx, event.OrganizationID)

		run, err := s.workflows.StartDeprovisioning(ctx, models.DeprovisioningWorkflowInput{
			OrganizationID: event.OrganizationID,
			BatchID:        event.BatchID,
			QueueEntryIDs:  event.QueueEntryIDs,
		})
		if err != nil {
			return s.settle(ctx, msg, err)
		}
		s.Logger.WithContext(ctx).Infow("deprovisioning workflow scheduled",
			"workflow_id", run.WorkflowID,
			"already_started", run.AlreadyStarted)
		return nil

	case types.EventDeprovisioningCanceled:
		var event events.DeprovisioningCanceled
		if err := events.Decode(msg, &event); err != nil {
			return s.settle(ctx, msg, err)
		}
		ctx = types.WithOrganizationID(ctx, event.OrganizationID)

		signaled, err := s.workflows.CancelDeprovisioning(ctx, event.OrganizationID, event.BatchIDs, event.Status)
		if err != nil {
			return s.settle(ctx, msg, err)
		}
		s.Logger.WithContext(ctx).Infow("deprovisioning workflows signaled to cancel", "signaled", signaled)
		return nil

	default:
		s.Logger.WithContext(ctx).Warnw("ignoring unknown deprovisioning event", "event_name", name, "message_uuid", msg.UUID)
		return nil
	}
}

func (s *eventConsumptionService) processMembershipEvent(msg *message.Message) error {
	ctx := messageContext(msg)

	if name := events.EventNameOf(msg); name != types.EventMembershipLeft {
		s.Logger.WithContext(ctx).Debugw("ignoring membership event", "event_name", name)
		return nil
	}

	var event events.MembershipLeft
	if err := events.Decode(msg, &event); err != nil {
		return s.settle(ctx, msg, err)
	}
	ctx = types.WithOrganizationID(ctx, event.OrganizationID)

	entry, err := s.queue.HandleMemberLeft(ctx, event.OrganizationID, event.UserID)
	if err != nil {
		return s.settle(ctx, msg, err)
	}
	if entry != nil {
		s.Logger.WithContext(ctx).Infow("member left, queue entry closed",
			"user_id", event.UserID,
			"queue_entry_id", entry.ID,
			"status", entry.Status)
	}
	return nil
}

// settle acks messages that cannot succeed on retry and hands everything else
// back to the router for redelivery.
func (s *eventConsumptionService) settle(ctx context.Context, msg *message.Message, err error) error {
	if ierr.IsValidation(err) || ierr.IsNotFound(err) || ierr.IsInvalidOperation(err) {
		s.Logger.WithContext(ctx).Warnw("dropping message",
			"message_uuid", msg.UUID,
			"event_name", events.EventNameOf(msg),
			"error", err)
		return nil
	}
	s.Logger.WithContext(ctx).Errorw("failed to process message",
		"message_uuid", msg.UUID,
		"event_name", events.EventNameOf(msg),
		"error", err)
	return err
}

func messageContext(msg *message.Message) context.Context {
	ctx := msg.Context()
	if id := middleware.MessageCorrelationID(msg); id != "" {
		ctx = context.WithValue(ctx, types.CtxRequestID, id)
	}
	if organizationID := msg.Metadata.Get(types.MetadataOrganizationID); organizationID != "" {
		ctx = types.WithOrganizationID(ctx, organizationID)
	}
	return ctx
}
