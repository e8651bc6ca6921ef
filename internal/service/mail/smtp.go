package mail

import (
	"context"
	"fmt"
	"time"

	"Socially/pkg/logger"

	gomail "github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// smtpSender is the part of *gomail.Client the transport uses.
type smtpSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTP sends mail through an SMTP relay such as smtp.ethereal.email.
type SMTP struct {
	sender Sender
	client smtpSender
	logger *logger.Logger
}

func NewSMTP(sender Sender, cfg SMTPConfig, lgr *logger.Logger) (*SMTP, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return newSMTP(sender, client, lgr), nil
}

func newSMTP(sender Sender, client smtpSender, lgr *logger.Logger) *SMTP {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &SMTP{sender: sender, client: client, logger: lgr.Named("mail.smtp")}
}

func (s *SMTP) SendEmail(ctx context.Context, receiverEmail, subject, body string) error {
	msg, err := s.message(receiverEmail, subject, body)
	if err != nil {
		return deliveryError("smtp", err)
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		s.logger.Error("error sending email", logger.String("to", receiverEmail), logger.Error(err))
		return deliveryError("smtp", err)
	}
	s.logger.Info("development email sent successfully", logger.String("to", receiverEmail))
	return nil
}

func (s *SMTP) message(receiverEmail, subject, body string) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.sender.Name, s.sender.Email); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := msg.To(receiverEmail); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)
	return msg, nil
}
