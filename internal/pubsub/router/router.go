package router

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/sentry"
)

// Router wraps the watermill router with retry, recovery and Sentry capture.
type Router struct {
	router *message.Router
	logger *logger.Logger
}

func NewRouter(logger *logger.Logger, sentryService *sentry.Service) (*Router, error) {
	r, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: 30 * time.Second,
	}, logger.GetWatermillLogger())
	if err != nil {
		return nil, err
	}

	r.AddMiddleware(
		middleware.CorrelationID,
		sentryMiddleware(sentryService),
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
			Logger:          logger.GetWatermillLogger(),
		}.Middleware,
		middleware.Recoverer,
	)

	return &Router{router: r, logger: logger}, nil
}

// AddNoPublisherHandler registers handler for topic.
func (r *Router) AddNoPublisherHandler(name, topic string, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) {
	r.router.AddNoPublisherHandler(name, topic, subscriber, handler)
	r.logger.Infow("registered event handler", "handler", name, "topic", topic)
}

// Run blocks until ctx is canceled or Close is called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running is closed once all handlers are subscribed.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

func (r *Router) Close() error {
	return r.router.Close()
}

// sentryMiddleware reports handler errors that survive retries.
func sentryMiddleware(sentryService *sentry.Service) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			produced, err := h(msg)
			if err != nil && sentryService != nil {
				sentryService.CaptureException(err, map[string]string{
					"message_uuid": msg.UUID,
					"handler":      message.HandlerNameFromCtx(msg.Context()),
				})
			}
			return produced, err
		}
	}
}
