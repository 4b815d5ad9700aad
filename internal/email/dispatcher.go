package email

import (
	"context"
	"fmt"

	"github.com/flexprice/deprovisioner/internal/domain/notification"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
)

// Dispatcher implements notification.Dispatcher on top of Email.
type Dispatcher struct {
	email  *Email
	logger *logger.Logger
}

var _ notification.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(email *Email, logger *logger.Logger) notification.Dispatcher {
	return &Dispatcher{email: email, logger: logger}
}

func (d *Dispatcher) Send(ctx context.Context, msg *notification.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := d.email.SendEmailWithTemplate(ctx, SendEmailWithTemplateRequest{
		ToAddress:    msg.AdminEmail,
		Subject:      fmt.Sprintf(emailSubjects[msg.Template], msg.OrganizationName),
		TemplatePath: msg.Template.String(),
		Data:         templateData(msg),
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		d.logger.Debugw("notification not delivered", "template", msg.Template, "reason", resp.Error)
		return ierr.NewErrorf("email not sent: %s", resp.Error).
			WithHint("Notification email was not delivered").
			Mark(ierr.ErrInvalidOperation)
	}
	return nil
}

func templateData(msg *notification.Message) map[string]interface{} {
	data := map[string]interface{}{
		"admin_name":        msg.AdminName,
		"organization_name": msg.OrganizationName,
		"affected_user_ids": msg.Data.AffectedUserIDs,
		"days_remaining":    msg.Data.DaysRemaining,
		"hours_remaining":   msg.Data.HoursRemaining,
		"count":             msg.Data.Count,
	}
	if !msg.Data.ScheduledFor.IsZero() {
		data["scheduled_for"] = msg.Data.ScheduledFor.UTC().Format("January 2, 2006")
	}
	if msg.AdminName == "" {
		data["admin_name"] = "there"
	}
	return data
}
