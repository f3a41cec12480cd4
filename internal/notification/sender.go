package notification

import (
	"context"
	"errors"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/config"
)

// Sender delivers a single HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// NewSender selects the email backend from configuration.
func NewSender(cfg config.Config, logger *zap.Logger) Sender {
	if cfg.Email.Driver == "resend" && cfg.Email.APIKey != "" {
		return &resendSender{client: resend.NewClient(cfg.Email.APIKey), from: cfg.Email.From}
	}
	logger.Info("email delivery disabled; confirmations will only be logged")
	return logSender{logger: logger}
}

type resendSender struct {
	client *resend.Client
	from   string
}

func (s *resendSender) Send(ctx context.Context, to, subject, html string) error {
	if to == "" {
		return errors.New("recipient is required")
	}
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	return err
}

type logSender struct {
	logger *zap.Logger
}

func (s logSender) Send(_ context.Context, to, subject, html string) error {
	s.logger.Info("email not sent; no provider configured",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("html.bytes", len(html)),
	)
	return nil
}
