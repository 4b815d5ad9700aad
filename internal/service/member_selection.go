package service

import (
	"context"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/selection"
)

// SelectionRequest asks for a removal plan. Nil options fall back to the
// deprovisioning configuration.
type SelectionRequest struct {
	OrganizationID    string
	NewAllowedMembers int
	ProtectCreator    *bool
	MinimumAdmins     *int
}

func (r *SelectionRequest) Validate() error {
	if r.OrganizationID == "" {
		return ierr.NewError("organization_id is required").
			WithHint("Organization ID is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

type MemberSelectionService interface {
	SelectMembersForRemoval(ctx context.Context, req *SelectionRequest) (*selection.Result, error)
}

type memberSelectionService struct {
	ServiceParams
}

func NewMemberSelectionService(params ServiceParams) MemberSelectionService {
	return &memberSelectionService{ServiceParams: params}
}

func (s *memberSelectionService) SelectMembersForRemoval(ctx context.Context, req *SelectionRequest) (*selection.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	opts := selection.Options{
		NewAllowedMembers: req.NewAllowedMembers,
		ProtectCreator:    s.Config.Deprovisioning.ProtectCreator,
		MinimumAdmins:     s.Config.Deprovisioning.MinimumAdmins,
	}
	if req.ProtectCreator != nil {
		opts.ProtectCreator = *req.ProtectCreator
	}
	if req.MinimumAdmins != nil {
		opts.MinimumAdmins = *req.MinimumAdmins
	}

	snapshot, err := s.MembershipRepo.GetSnapshot(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	result := selection.Plan(snapshot, opts)

	s.Logger.WithContext(ctx).Debugw("computed removal plan",
		"organization_id", req.OrganizationID,
		"current_total", result.Stats.CurrentTotal,
		"new_limit", result.Stats.NewLimit,
		"excess", result.Stats.ExcessCount,
		"to_remove", len(result.ToRemove),
		"requires_manual_intervention", result.RequiresManualIntervention,
	)
	return result, nil
}
