package email

import (
	"bytes"
	"context"
	"html/template"

	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
)

type SendEmailWithTemplateRequest struct {
	FromAddress  string
	ToAddress    string
	Subject      string
	TemplatePath string
	Data         map[string]interface{}
}

type SendEmailWithTemplateResponse struct {
	MessageID string `json:"message_id,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// Email renders templates and hands them to the client.
type Email struct {
	client *EmailClient
	logger *logger.Logger
}

func NewEmail(client *EmailClient, logger *logger.Logger) *Email {
	return &Email{
		client: client,
		logger: logger,
	}
}

// SendEmailWithTemplate sends an email using an HTML template. A disabled
// client is not an error; the response reports Success false.
func (s *Email) SendEmailWithTemplate(ctx context.Context, req SendEmailWithTemplateRequest) (*SendEmailWithTemplateResponse, error) {
	if !s.client.IsEnabled() {
		s.logger.Warnw("email client is disabled, skipping email send",
			"to", req.ToAddress,
			"subject", req.Subject,
			"template", req.TemplatePath,
		)
		return &SendEmailWithTemplateResponse{
			Success: false,
			Error:   "email client is disabled",
		}, nil
	}

	fromAddress := s.client.GetFromAddress()
	if fromAddress == "" {
		fromAddress = req.FromAddress
	}

	htmlContent, err := s.render(req.TemplatePath, req.Data)
	if err != nil {
		s.logger.Errorw("failed to render email template",
			"error", err,
			"template", req.TemplatePath,
		)
		return &SendEmailWithTemplateResponse{Success: false, Error: err.Error()}, err
	}

	messageID, err := s.client.SendEmail(ctx, fromAddress, req.ToAddress, req.Subject, htmlContent, "")
	if err != nil {
		s.logger.Errorw("failed to send templated email",
			"error", err,
			"to", req.ToAddress,
			"template", req.TemplatePath,
		)
		return &SendEmailWithTemplateResponse{Success: false, Error: err.Error()}, err
	}

	s.logger.Infow("templated email sent successfully",
		"message_id", messageID,
		"to", req.ToAddress,
		"template", req.TemplatePath,
	)

	return &SendEmailWithTemplateResponse{
		MessageID: messageID,
		Success:   true,
	}, nil
}

// render looks up templatePath and executes it with html/template escaping.
func (s *Email) render(templatePath string, data map[string]interface{}) (string, error) {
	content, ok := emailTemplates[templatePath]
	if !ok {
		return "", ierr.NewErrorf("template not found: %s", templatePath).
			Mark(ierr.ErrNotFound)
	}

	tmpl, err := template.New(templatePath).Parse(content)
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to parse email template").
			Mark(ierr.ErrInternal)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to execute email template").
			Mark(ierr.ErrInternal)
	}
	return buf.String(), nil
}
