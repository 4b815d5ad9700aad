package service

import (
	"context"

	"github.com/flexprice/deprovisioner/internal/domain/notification"
	"github.com/flexprice/deprovisioner/internal/types"
)

// NotifyResult counts one fan-out to the organization's admins.
type NotifyResult struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type NotificationService interface {
	// NotifyAdmins sends template to every current admin of the organization.
	// Send failures are logged per admin and never returned; only failing to
	// load the recipients is an error.
	NotifyAdmins(ctx context.Context, organizationID string, template types.NotificationTemplate, data notification.TemplateData) (*NotifyResult, error)
}

type notificationService struct {
	ServiceParams
}

func NewNotificationService(params ServiceParams) NotificationService {
	return &notificationService{ServiceParams: params}
}

func (s *notificationService) NotifyAdmins(ctx context.Context, organizationID string, template types.NotificationTemplate, data notification.TemplateData) (*NotifyResult, error) {
	org, err := s.MembershipRepo.GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	admins, err := s.MembershipRepo.ListAdmins(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	log := s.Logger.WithContext(ctx).With("organization_id", organizationID, "template", template)
	result := &NotifyResult{}
	for _, admin := range admins {
		result.Attempted++
		err := s.Dispatcher.Send(ctx, &notification.Message{
			Template:         template,
			AdminEmail:       admin.Email,
			AdminName:        admin.Name,
			OrganizationName: org.Name,
			Data:             data,
		})
		s.Metrics.RecordNotification(ctx, template.String(), err == nil)
		if err != nil {
			result.Failed++
			log.Errorw("failed to notify admin", "admin_user_id", admin.UserID, "error", err)
			continue
		}
		result.Delivered++
	}

	if len(admins) == 0 {
		log.Warnw("organization has no admins to notify")
	}
	log.Infow("notified admins", "attempted", result.Attempted, "delivered", result.Delivered, "failed", result.Failed)
	return result, nil
}
