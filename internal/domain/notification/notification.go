// Package notification defines the admin email contract used by deprovisioning.
package notification

import (
	"context"
	"time"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/types"
)

// Message is one templated email to one organization admin.
type Message struct {
	Template         types.NotificationTemplate `json:"template"`
	AdminEmail       string                     `json:"admin_email"`
	AdminName        string                     `json:"admin_name"`
	OrganizationName string                     `json:"organization_name"`
	Data             TemplateData               `json:"data"`
}

// TemplateData carries the per template arguments. Only the fields relevant to
// Message.Template are set.
type TemplateData struct {
	// scheduled removal
	AffectedUserIDs []string  `json:"affected_user_ids,omitempty"`
	ScheduledFor    time.Time `json:"scheduled_for,omitempty"`

	// reminder
	DaysRemaining int `json:"days_remaining,omitempty"`

	// final warning
	HoursRemaining int `json:"hours_remaining,omitempty"`

	// removal completed / removal canceled
	Count int `json:"count,omitempty"`
}

func (m *Message) Validate() error {
	if m.AdminEmail == "" {
		return ierr.NewError("admin email is required").
			WithHint("Notification needs a recipient").
			Mark(ierr.ErrValidation)
	}
	switch m.Template {
	case types.NotificationTemplateScheduledRemoval,
		types.NotificationTemplateReminder,
		types.NotificationTemplateFinalWarning,
		types.NotificationTemplateRemovalCompleted,
		types.NotificationTemplateRemovalCanceled:
		return nil
	}
	return ierr.NewErrorf("unknown notification template %q", m.Template).
		Mark(ierr.ErrValidation)
}

// Dispatcher sends admin notifications.
type Dispatcher interface {
	Send(ctx context.Context, msg *Message) error
}
