// Package pubsub provides the watermill transports used for domain events.
package pubsub

import (
	"github.com/ThreeDotsLabs/watermill/message"
)

// PubSub publishes to and subscribes from named topics.
type PubSub interface {
	message.Publisher
	message.Subscriber
}
