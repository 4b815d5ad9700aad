package service

import (
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	"github.com/flexprice/deprovisioner/internal/domain/membership"
	"github.com/flexprice/deprovisioner/internal/domain/notification"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/metrics"
	"github.com/flexprice/deprovisioner/internal/plans"
	"github.com/flexprice/deprovisioner/internal/postgres"
	"github.com/flexprice/deprovisioner/internal/types"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	MembershipRepo membership.Repository
	QueueRepo      deprovisioning.Repository

	// Collaborators
	Dispatcher     notification.Dispatcher
	PlanLookup     plans.Lookup
	EventPublisher events.Publisher
	Metrics        *metrics.Metrics
	Clock          types.Clock
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	membershipRepo membership.Repository,
	queueRepo deprovisioning.Repository,
	dispatcher notification.Dispatcher,
	planLookup plans.Lookup,
	eventPublisher events.Publisher,
	metrics *metrics.Metrics,
	clock types.Clock,
) ServiceParams {
	return ServiceParams{
		Logger:         logger,
		Config:         config,
		DB:             db,
		MembershipRepo: membershipRepo,
		QueueRepo:      queueRepo,
		Dispatcher:     dispatcher,
		PlanLookup:     planLookup,
		EventPublisher: eventPublisher,
		Metrics:        metrics,
		Clock:          clock,
	}
}

func (p ServiceParams) now() time.Time {
	if p.Clock == nil {
		return time.Now().UTC()
	}
	return p.Clock()
}
