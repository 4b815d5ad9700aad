package service

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	"github.com/flexprice/deprovisioner/internal/domain/notification"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/events"
	"github.com/flexprice/deprovisioner/internal/plans"
	"github.com/flexprice/deprovisioner/internal/selection"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/samber/lo"
)

// canceledSubscriptionLimit is the member limit applied when a subscription
// is canceled outright.
const canceledSubscriptionLimit = 1

type SubscriptionChangeOutcome string

const (
	SubscriptionChangeOutcomeDowngrade   SubscriptionChangeOutcome = "downgrade"
	SubscriptionChangeOutcomeUpgrade     SubscriptionChangeOutcome = "upgrade"
	SubscriptionChangeOutcomeNoChange    SubscriptionChangeOutcome = "no_change"
	SubscriptionChangeOutcomeUnknownPlan SubscriptionChangeOutcome = "unknown_plan"
	// SubscriptionChangeOutcomeStale is an event older than one already applied
	// to the organization. It changes nothing.
	SubscriptionChangeOutcomeStale SubscriptionChangeOutcome = "stale"
)

type SubscriptionChangeRequest struct {
	OrganizationID string
	OldProductID   string
	NewProductID   string
	EventAt        time.Time
}

func (r *SubscriptionChangeRequest) Validate() error {
	if r.OrganizationID == "" {
		return ierr.NewError("organization_id is required").
			WithHint("Subscription change must name an organization").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NewSubscriptionChangeRequest converts the billing event.
func NewSubscriptionChangeRequest(e *events.SubscriptionChanged) *SubscriptionChangeRequest {
	return &SubscriptionChangeRequest{
		OrganizationID: e.OrganizationID,
		OldProductID:   e.OldProductID,
		NewProductID:   e.NewProductID,
		EventAt:        e.EventTime(),
	}
}

type SubscriptionChangeResult struct {
	Outcome  SubscriptionChangeOutcome `json:"outcome"`
	OldLimit int                       `json:"old_limit"`
	NewLimit int                       `json:"new_limit"`

	// downgrade
	BatchID                    string           `json:"batch_id,omitempty"`
	QueueEntryIDs              []string         `json:"queue_entry_ids,omitempty"`
	InvitationsRemoved         int              `json:"invitations_removed"`
	RequiresManualIntervention bool             `json:"requires_manual_intervention"`
	InterventionReason         string           `json:"intervention_reason,omitempty"`
	Stats                      *selection.Stats `json:"stats,omitempty"`

	// upgrade
	CanceledCount int `json:"canceled_count"`
}

type SubscriptionChangeService interface {
	HandleSubscriptionChange(ctx context.Context, req *SubscriptionChangeRequest) (*SubscriptionChangeResult, error)
}

type subscriptionChangeService struct {
	ServiceParams
	selector      MemberSelectionService
	queue         DeprovisioningQueueService
	notifications NotificationService
}

func NewSubscriptionChangeService(
	params ServiceParams,
	selector MemberSelectionService,
	queue DeprovisioningQueueService,
	notifications NotificationService,
) SubscriptionChangeService {
	return &subscriptionChangeService{
		ServiceParams: params,
		selector:      selector,
		queue:         queue,
		notifications: notifications,
	}
}

func (s *subscriptionChangeService) HandleSubscriptionChange(ctx context.Context, req *SubscriptionChangeRequest) (*SubscriptionChangeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = types.WithOrganizationID(ctx, req.OrganizationID)
	log := s.Logger.WithContext(ctx).With(
		"old_product_id", req.OldProductID,
		"new_product_id", req.NewProductID,
		"event_at", req.EventAt,
	)

	current, err := s.claimEvent(ctx, req)
	if err != nil {
		return nil, err
	}
	if !current {
		log.Warnw("subscription change is older than the last applied one, ignoring")
		return &SubscriptionChangeResult{Outcome: SubscriptionChangeOutcomeStale}, nil
	}

	switch {
	case req.NewProductID == "":
		log.Infow("subscription canceled, limiting organization to one member")
		return s.handleDowngrade(ctx, req, &plans.Change{IsDowngrade: true, NewLimit: canceledSubscriptionLimit},
			types.DeprovisioningReasonSubscriptionCancelled)
	case req.OldProductID == "":
		log.Infow("new subscription, treating as upgrade")
		return s.handleUpgrade(ctx, req, &plans.Change{})
	}

	change, err := s.PlanLookup.IsDowngrade(ctx, req.OldProductID, req.NewProductID)
	if err != nil {
		return nil, err
	}
	if change == nil {
		log.Warnw("member limit unknown for product, ignoring subscription change")
		return &SubscriptionChangeResult{Outcome: SubscriptionChangeOutcomeUnknownPlan}, nil
	}

	switch {
	case change.IsDowngrade:
		return s.handleDowngrade(ctx, req, change, types.DeprovisioningReasonSubscriptionDowngrade)
	case change.IsUpgrade():
		return s.handleUpgrade(ctx, req, change)
	default:
		log.Debugw("member limit unchanged", "limit", change.NewLimit)
		return &SubscriptionChangeResult{
			Outcome:  SubscriptionChangeOutcomeNoChange,
			OldLimit: change.OldLimit,
			NewLimit: change.NewLimit,
		}, nil
	}
}

// claimEvent stamps the organization with the event time under the
// organization lock. Events without a time are always applied.
func (s *subscriptionChangeService) claimEvent(ctx context.Context, req *SubscriptionChangeRequest) (bool, error) {
	if req.EventAt.IsZero() {
		return true, nil
	}
	var current bool
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := lockOrganization(ctx, s.DB, req.OrganizationID); err != nil {
			return err
		}
		var err error
		current, err = s.MembershipRepo.ClaimSubscriptionEvent(ctx, req.OrganizationID, req.EventAt)
		return err
	})
	return current, err
}

func (s *subscriptionChangeService) handleDowngrade(ctx context.Context, req *SubscriptionChangeRequest, change *plans.Change, reason types.DeprovisioningReason) (*SubscriptionChangeResult, error) {
	log := s.Logger.WithContext(ctx)

	plan, err := s.selector.SelectMembersForRemoval(ctx, &SelectionRequest{
		OrganizationID:    req.OrganizationID,
		NewAllowedMembers: change.NewLimit,
	})
	if err != nil {
		log.Errorw("failed to select members for removal, nothing was queued", "error", err)
		return nil, err
	}

	result := &SubscriptionChangeResult{
		Outcome:                    SubscriptionChangeOutcomeDowngrade,
		OldLimit:                   change.OldLimit,
		NewLimit:                   change.NewLimit,
		RequiresManualIntervention: plan.RequiresManualIntervention,
		InterventionReason:         plan.InterventionReason,
		Stats:                      &plan.Stats,
	}

	if plan.RequiresManualIntervention {
		s.Metrics.RecordManualIntervention(ctx)
		log.Warnw("downgrade requires manual intervention",
			"reason", plan.InterventionReason,
			"excess", plan.Stats.ExcessCount,
			"selected", len(plan.ToRemove),
		)
	}

	// Invitations have no grace period.
	if invitations := selection.Invitations(plan.ToRemove); len(invitations) > 0 {
		ids := lo.Map(invitations, func(c *selection.InvitationCandidate, _ int) string { return c.InvitationID })
		removed, err := s.MembershipRepo.DeleteInvitations(ctx, req.OrganizationID, ids)
		if err != nil {
			log.Errorw("failed to delete excess invitations", "invitation_ids", ids, "error", err)
		} else {
			result.InvitationsRemoved = removed
			log.Infow("deleted excess invitations", "count", removed)
		}
	}

	memberships := selection.Memberships(plan.ToRemove)
	if len(memberships) == 0 {
		return result, nil
	}

	queued, err := s.queue.UpsertEntries(ctx, &UpsertEntriesRequest{
		OrganizationID: req.OrganizationID,
		Candidates:     memberships,
		Reason:         reason,
	})
	if err != nil {
		return nil, err
	}
	result.BatchID = queued.BatchID
	result.QueueEntryIDs = queued.IDs

	if len(queued.IDs) == 0 {
		return result, nil
	}

	if err := s.EventPublisher.Publish(ctx, &events.DeprovisioningScheduled{
		OrganizationID: req.OrganizationID,
		BatchID:        queued.BatchID,
		QueueEntryIDs:  queued.IDs,
	}); err != nil {
		log.Errorw("failed to start deprovisioning workflow", "batch_id", queued.BatchID, "error", err)
		return nil, err
	}
	return result, nil
}

func (s *subscriptionChangeService) handleUpgrade(ctx context.Context, req *SubscriptionChangeRequest, change *plans.Change) (*SubscriptionChangeResult, error) {
	log := s.Logger.WithContext(ctx)
	result := &SubscriptionChangeResult{
		Outcome:  SubscriptionChangeOutcomeUpgrade,
		OldLimit: change.OldLimit,
		NewLimit: change.NewLimit,
	}

	canceled, err := s.queue.CancelAll(ctx, req.OrganizationID, types.QueueStatusCanceledUpgrade)
	if err != nil {
		return nil, err
	}
	result.CanceledCount = len(canceled)
	if len(canceled) == 0 {
		return result, nil
	}

	if _, err := s.notifications.NotifyAdmins(ctx, req.OrganizationID, types.NotificationTemplateRemovalCanceled,
		notification.TemplateData{Count: len(canceled)}); err != nil {
		log.Errorw("failed to send removal canceled notice", "error", err)
	}

	batchIDs := lo.Uniq(lo.FilterMap(canceled, func(e *deprovisioning.QueueEntry, _ int) (string, bool) {
		return e.BatchID, e.BatchID != ""
	}))
	if err := s.EventPublisher.Publish(ctx, &events.DeprovisioningCanceled{
		OrganizationID: req.OrganizationID,
		BatchIDs:       batchIDs,
		Status:         types.QueueStatusCanceledUpgrade,
	}); err != nil {
		// Running workflows find no entries at their next step and stop on their own.
		log.Errorw("failed to publish deprovisioning cancellation", "batch_ids", batchIDs, "error", err)
	}
	return result, nil
}
