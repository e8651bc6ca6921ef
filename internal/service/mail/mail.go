// Package mail delivers transactional email over SMTP or the SendGrid API.
package mail

import (
	"errors"
	"fmt"

	"Socially/internal/domain/repository"
	"Socially/pkg/config"
	"Socially/pkg/logger"
)

// ErrDelivery wraps every transport failure.
var ErrDelivery = errors.New("error sending email")

// Sender is the From header used for every message.
type Sender struct {
	Name  string
	Email string
}

func (s Sender) String() string {
	return fmt.Sprintf("%s <%s>", s.Name, s.Email)
}

// New picks the transport for the environment: SendGrid in production, SMTP otherwise.
func New(cfg *config.Config, lgr *logger.Logger) (repository.MailTransport, error) {
	sender := Sender{Name: cfg.Mail.SenderName, Email: cfg.Mail.SenderEmail}
	if cfg.IsProduction() {
		return NewSendGrid(sender, cfg.Mail.SendGridAPIKey, cfg.Mail.SendGridURL, cfg.Mail.Timeout, lgr), nil
	}
	return NewSMTP(sender, SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SenderEmail,
		Password: cfg.Mail.SenderPassword,
		Timeout:  cfg.Mail.Timeout,
	}, lgr)
}

func deliveryError(transport string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDelivery, transport, err)
}
