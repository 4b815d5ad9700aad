package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRoutesByEventName(t *testing.T) {
	cfg := config.GetDefaultConfig()
	log := logger.NewNopLogger()
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, log.GetWatermillLogger())
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := ch.Subscribe(ctx, cfg.PubSub.DeprovisioningEventsTopic)
	require.NoError(t, err)

	pub := NewPublisher(ch, cfg, log)
	reqCtx := context.WithValue(ctx, types.CtxRequestID, "req_1")
	require.NoError(t, pub.Publish(reqCtx, &DeprovisioningScheduled{
		OrganizationID: "org_1",
		BatchID:        "dpb_1",
		QueueEntryIDs:  []string{"dpq_1", "dpq_2"},
	}))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, types.EventDeprovisioningScheduled, EventNameOf(msg))
		assert.Equal(t, "org_1", msg.Metadata.Get(types.MetadataOrganizationID))
		assert.Equal(t, "req_1", middleware.MessageCorrelationID(msg))

		var got DeprovisioningScheduled
		require.NoError(t, Decode(msg, &got))
		assert.Equal(t, "dpb_1", got.BatchID)
		assert.Equal(t, []string{"dpq_1", "dpq_2"}, got.QueueEntryIDs)
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	msg, err := NewMessage(context.Background(), &MembershipLeft{OrganizationID: "org_1", UserID: "u1"})
	require.NoError(t, err)
	msg.Payload = []byte("{")

	var got MembershipLeft
	err = Decode(msg, &got)
	assert.True(t, ierr.IsValidation(err))
}

func TestSubscriptionChangedEventTime(t *testing.T) {
	e := &SubscriptionChanged{OrganizationID: "org_1", EventAt: 1700000000}
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), e.EventTime())
	assert.True(t, (&SubscriptionChanged{}).EventTime().IsZero())
	assert.Error(t, (&SubscriptionChanged{}).Validate())
}
