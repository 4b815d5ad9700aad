package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/types"
)

// Publisher emits deprovisioning events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type publisher struct {
	pub    message.Publisher
	topics map[types.EventName]string
	logger *logger.Logger
}

func NewPublisher(pub message.Publisher, cfg *config.Configuration, logger *logger.Logger) Publisher {
	return &publisher{
		pub: pub,
		topics: map[types.EventName]string{
			types.EventSubscriptionChanged:     cfg.PubSub.SubscriptionChangesTopic,
			types.EventDeprovisioningScheduled: cfg.PubSub.DeprovisioningEventsTopic,
			types.EventDeprovisioningCanceled:  cfg.PubSub.DeprovisioningEventsTopic,
			types.EventMembershipLeft:          cfg.PubSub.MembershipEventsTopic,
		},
		logger: logger,
	}
}

func (p *publisher) Publish(ctx context.Context, event Event) error {
	topic, ok := p.topics[event.EventName()]
	if !ok || topic == "" {
		return ierr.NewErrorf("no topic configured for %s", event.EventName()).
			Mark(ierr.ErrSystem)
	}

	msg, err := NewMessage(ctx, event)
	if err != nil {
		return err
	}

	if err := p.pub.Publish(topic, msg); err != nil {
		return ierr.WithError(err).
			WithHintf("Failed to publish %s", event.EventName()).
			WithReportableDetails(map[string]any{
				"topic":           topic,
				"organization_id": event.GetOrganizationID(),
			}).
			Mark(ierr.ErrSystem)
	}

	p.logger.WithContext(ctx).Debugw("published event",
		"event_name", event.EventName(),
		"topic", topic,
		"message_id", msg.UUID,
		"organization_id", event.GetOrganizationID(),
	)
	return nil
}

// NewMessage encodes event as a watermill message carrying its name,
// organization and the request id as correlation id.
func NewMessage(ctx context.Context, event Event) (*message.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Failed to encode %s", event.EventName()).
			Mark(ierr.ErrInternal)
	}

	msg := message.NewMessage(types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT), payload)
	msg.Metadata.Set(types.MetadataEventName, string(event.EventName()))
	msg.Metadata.Set(types.MetadataOrganizationID, event.GetOrganizationID())
	if requestID := types.GetRequestID(ctx); requestID != "" {
		middleware.SetCorrelationID(requestID, msg)
	}
	return msg, nil
}
