package email

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/resend/resend-go/v2"
	"golang.org/x/time/rate"
)

type sendFunc func(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)

// EmailClient sends through Resend, rate limited and retried with backoff.
type EmailClient struct {
	send        sendFunc
	enabled     bool
	fromAddress string
	limiter     *rate.Limiter
	maxRetries  uint64
}

func NewEmailClient(cfg *config.Configuration) *EmailClient {
	c := &EmailClient{
		enabled:     cfg.Email.Enabled && cfg.Email.ResendAPIKey != "",
		fromAddress: cfg.Email.FromAddress,
		limiter:     newLimiter(cfg.Email.RateLimitPerSec),
		maxRetries:  cfg.Email.MaxRetries,
	}
	if c.enabled {
		client := resend.NewClient(cfg.Email.ResendAPIKey)
		c.send = client.Emails.SendWithContext
	}
	return c
}

func newLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSec), 1)
}

func (c *EmailClient) IsEnabled() bool {
	return c.enabled
}

func (c *EmailClient) GetFromAddress() string {
	return c.fromAddress
}

// SendEmail sends one message and returns the provider message id.
func (c *EmailClient) SendEmail(ctx context.Context, from, to, subject, html, text string) (string, error) {
	if !c.enabled {
		return "", ierr.NewError("email client is disabled").
			Mark(ierr.ErrInvalidOperation)
	}

	params := &resend.SendEmailRequest{
		From:    from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
		Text:    text,
	}

	var messageID string
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		sent, err := c.send(ctx, params)
		if err != nil {
			return err
		}
		messageID = sent.Id
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to send email").
			WithReportableDetails(map[string]interface{}{"to": to, "subject": subject}).
			Mark(ierr.ErrSystem)
	}
	return messageID, nil
}
