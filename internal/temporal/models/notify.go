package models

import (
	"github.com/flexprice/deprovisioner/internal/domain/notification"
	"github.com/flexprice/deprovisioner/internal/types"
)

type NotifyAdminsInput struct {
	OrganizationID string                     `json:"organization_id"`
	Template       types.NotificationTemplate `json:"template"`
	Data           notification.TemplateData  `json:"data"`
}
