package service

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

// Banner is the admin warning about upcoming removals. Active is false when
// nothing is scheduled.
type Banner struct {
	OrganizationID string             `json:"organization_id"`
	Active         bool               `json:"active"`
	AffectedCount  int                `json:"affected_count"`
	AffectedUsers  []string           `json:"affected_user_ids,omitempty"`
	ScheduledFor   *time.Time         `json:"scheduled_for,omitempty"`
	DaysRemaining  int                `json:"days_remaining"`
	Urgency        types.UrgencyLevel `json:"urgency,omitempty"`
}

type BannerService interface {
	GetBanner(ctx context.Context, organizationID string) (*Banner, error)
}

type bannerService struct {
	ServiceParams
	queue DeprovisioningQueueService
}

func NewBannerService(params ServiceParams, queue DeprovisioningQueueService) BannerService {
	return &bannerService{ServiceParams: params, queue: queue}
}

// GetBanner derives urgency from the earliest scheduled removal only.
func (s *bannerService) GetBanner(ctx context.Context, organizationID string) (*Banner, error) {
	pending, err := s.queue.GetPending(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	banner := &Banner{OrganizationID: organizationID}
	if len(pending) == 0 {
		return banner, nil
	}

	earliest := lo.MinBy(pending, func(a, b *deprovisioning.QueueEntry) bool {
		return a.ScheduledFor.Before(b.ScheduledFor)
	})
	daysRemaining := earliest.DaysRemaining(s.now())

	banner.Active = true
	banner.AffectedCount = len(pending)
	banner.AffectedUsers = lo.Map(pending, func(e *deprovisioning.QueueEntry, _ int) string { return e.UserID })
	banner.ScheduledFor = lo.ToPtr(earliest.ScheduledFor)
	banner.DaysRemaining = daysRemaining
	banner.Urgency = types.UrgencyForDaysRemaining(daysRemaining)
	return banner, nil
}
