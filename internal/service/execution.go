package service

import (
	"context"
	"time"

	"github.com/flexprice/deprovisioner/internal/domain/deprovisioning"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/types"
)

// ExecutionResult reports what a deactivation attempt did.
type ExecutionResult struct {
	QueueEntryID   string                 `json:"queue_entry_id"`
	OrganizationID string                 `json:"organization_id"`
	UserID         string                 `json:"user_id"`
	Outcome        types.ExecutionOutcome `json:"outcome"`
	Message        string                 `json:"message,omitempty"`
}

// Succeeded reports whether the membership is now inactive because of, or
// despite, this attempt.
func (r *ExecutionResult) Succeeded() bool {
	return r.Outcome == types.ExecutionOutcomeDeactivated || r.Outcome == types.ExecutionOutcomeNoop
}

type ExecutionService interface {
	// ExecuteDeactivation soft deactivates the membership behind the entry
	// using the service clock.
	ExecuteDeactivation(ctx context.Context, queueEntryID string) (*ExecutionResult, error)

	// ExecuteDeactivationAt is ExecuteDeactivation evaluated at asOf.
	ExecuteDeactivationAt(ctx context.Context, queueEntryID string, asOf time.Time) (*ExecutionResult, error)
}

type executionService struct {
	ServiceParams
	queue DeprovisioningQueueService
}

func NewExecutionService(params ServiceParams, queue DeprovisioningQueueService) ExecutionService {
	return &executionService{ServiceParams: params, queue: queue}
}

func (s *executionService) ExecuteDeactivation(ctx context.Context, queueEntryID string) (*ExecutionResult, error) {
	return s.ExecuteDeactivationAt(ctx, queueEntryID, s.now())
}

func (s *executionService) ExecuteDeactivationAt(ctx context.Context, queueEntryID string, asOf time.Time) (*ExecutionResult, error) {
	entry, err := s.queue.GetEntry(ctx, queueEntryID)
	if err != nil {
		s.Metrics.RecordExecution(ctx, types.ExecutionOutcomeFailed.String())
		return nil, err
	}

	result := &ExecutionResult{
		QueueEntryID:   entry.ID,
		OrganizationID: entry.OrganizationID,
		UserID:         entry.UserID,
	}

	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := lockMembership(ctx, s.DB, entry.OrganizationID, entry.UserID); err != nil {
			return err
		}
		// a concurrent run may have finished or rescheduled the entry
		current, err := s.QueueRepo.Get(ctx, queueEntryID)
		if err != nil {
			return err
		}
		entry = current

		switch {
		case entry.Status == types.QueueStatusCompleted:
			result.Outcome = types.ExecutionOutcomeNoop
			result.Message = "queue entry already completed"
			return nil
		case !entry.IsDueForExecution(asOf):
			result.Outcome = types.ExecutionOutcomeSkipped
			result.Message = "queue entry is not due for execution"
			return nil
		}

		outcome, err := s.deactivate(ctx, entry, asOf)
		if err != nil {
			return err
		}
		result.Outcome = outcome
		if outcome == types.ExecutionOutcomeNoop {
			result.Message = "membership already inactive"
		}
		_, err = s.queue.MarkCompleted(ctx, entry.ID)
		return err
	})
	if err != nil {
		s.Metrics.RecordExecution(ctx, types.ExecutionOutcomeFailed.String())
		s.Logger.WithContext(ctx).Errorw("failed to deactivate membership",
			"queue_entry_id", entry.ID,
			"organization_id", entry.OrganizationID,
			"user_id", entry.UserID,
			"error", err,
		)
		return nil, err
	}

	s.Metrics.RecordExecution(ctx, result.Outcome.String())
	if result.Outcome == types.ExecutionOutcomeSkipped {
		s.Logger.WithContext(ctx).Infow("skipping deactivation",
			"queue_entry_id", entry.ID,
			"status", entry.Status,
			"scheduled_for", entry.ScheduledFor,
			"as_of", asOf,
		)
		return result, nil
	}

	s.Logger.WithContext(ctx).Infow("executed deactivation",
		"queue_entry_id", entry.ID,
		"organization_id", entry.OrganizationID,
		"user_id", entry.UserID,
		"outcome", result.Outcome,
	)
	return result, nil
}

func (s *executionService) deactivate(ctx context.Context, entry *deprovisioning.QueueEntry, at time.Time) (types.ExecutionOutcome, error) {
	member, err := s.MembershipRepo.GetMember(ctx, entry.OrganizationID, entry.UserID)
	if err != nil {
		if ierr.IsNotFound(err) {
			return types.ExecutionOutcomeNoop, nil
		}
		return "", err
	}
	if !member.IsActive {
		return types.ExecutionOutcomeNoop, nil
	}

	changed, err := s.MembershipRepo.Deactivate(ctx, entry.OrganizationID, entry.UserID, at)
	if err != nil {
		return "", err
	}
	if !changed {
		return types.ExecutionOutcomeNoop, nil
	}
	return types.ExecutionOutcomeDeactivated, nil
}
