package email

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	"github.com/flexprice/deprovisioner/internal/domain/notification"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/flexprice/deprovisioner/internal/types"
	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResend struct {
	failures int
	requests []*resend.SendEmailRequest
}

func (f *fakeResend) send(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.requests = append(f.requests, params)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("429 too many requests")
	}
	return &resend.SendEmailResponse{Id: "msg_1"}, nil
}

func newTestDispatcher(fake *fakeResend, maxRetries uint64) notification.Dispatcher {
	client := &EmailClient{
		send:        fake.send,
		enabled:     true,
		fromAddress: "billing@example.com",
		limiter:     newLimiter(0),
		maxRetries:  maxRetries,
	}
	log := logger.NewNopLogger()
	return NewDispatcher(NewEmail(client, log), log)
}

func TestDispatcherRendersEveryTemplate(t *testing.T) {
	scheduledFor := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		template types.NotificationTemplate
		data     notification.TemplateData
		contains string
	}{
		{types.NotificationTemplateScheduledRemoval, notification.TemplateData{AffectedUserIDs: []string{"u_1", "u_2"}, ScheduledFor: scheduledFor}, "May 15, 2026"},
		{types.NotificationTemplateReminder, notification.TemplateData{DaysRemaining: 7}, "7 day(s)"},
		{types.NotificationTemplateFinalWarning, notification.TemplateData{HoursRemaining: 24}, "24 hour(s)"},
		{types.NotificationTemplateRemovalCompleted, notification.TemplateData{Count: 3}, "3 member(s)"},
		{types.NotificationTemplateRemovalCanceled, notification.TemplateData{Count: 2}, "2 member(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.template.String(), func(t *testing.T) {
			fake := &fakeResend{}
			d := newTestDispatcher(fake, 0)

			err := d.Send(context.Background(), &notification.Message{
				Template:         tt.template,
				AdminEmail:       "admin@acme.io",
				AdminName:        "Ada",
				OrganizationName: "Acme <Labs>",
				Data:             tt.data,
			})
			require.NoError(t, err)
			require.Len(t, fake.requests, 1)

			req := fake.requests[0]
			assert.Equal(t, []string{"admin@acme.io"}, req.To)
			assert.Equal(t, "billing@example.com", req.From)
			assert.Contains(t, req.Subject, "Acme <Labs>")
			assert.Contains(t, req.Html, tt.contains)
			assert.Contains(t, req.Html, "Acme &lt;Labs&gt;")
		})
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	fake := &fakeResend{failures: 2}
	d := newTestDispatcher(fake, 3)

	err := d.Send(context.Background(), &notification.Message{
		Template:   types.NotificationTemplateRemovalCanceled,
		AdminEmail: "admin@acme.io",
	})
	require.NoError(t, err)
	assert.Len(t, fake.requests, 3)
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	fake := &fakeResend{failures: 10}
	d := newTestDispatcher(fake, 1)

	err := d.Send(context.Background(), &notification.Message{
		Template:   types.NotificationTemplateRemovalCanceled,
		AdminEmail: "admin@acme.io",
	})
	require.Error(t, err)
	assert.Len(t, fake.requests, 2)
}

func TestDisabledClientReportsUndelivered(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Email.Enabled = false
	log := logger.NewNopLogger()
	d := NewDispatcher(NewEmail(NewEmailClient(cfg), log), log)

	err := d.Send(context.Background(), &notification.Message{
		Template:   types.NotificationTemplateReminder,
		AdminEmail: "admin@acme.io",
	})
	assert.True(t, ierr.IsInvalidOperation(err))
}

func TestSendRejectsInvalidMessage(t *testing.T) {
	d := newTestDispatcher(&fakeResend{}, 0)
	err := d.Send(context.Background(), &notification.Message{Template: "unknown", AdminEmail: "a@b.c"})
	assert.Error(t, err)
}
