package memory

import (
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/pubsub"
)

// PubSub is an in-process transport for local mode and tests. Messages are
// lost on restart.
type PubSub struct {
	*gochannel.GoChannel
}

var _ pubsub.PubSub = (*PubSub)(nil)

func NewPubSub(logger *logger.Logger) *PubSub {
	return &PubSub{
		GoChannel: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger.GetWatermillLogger()),
	}
}
