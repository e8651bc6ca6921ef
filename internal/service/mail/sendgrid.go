package mail

import (
	"context"
	"time"

	xhttp "Socially/pkg/http"
	"Socially/pkg/logger"
)

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridMessage struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// SendGrid sends mail through the SendGrid v3 mail/send API.
type SendGrid struct {
	sender Sender
	url    string
	client *xhttp.Client
	logger *logger.Logger
}

func NewSendGrid(sender Sender, apiKey, url string, timeout time.Duration, lgr *logger.Logger) *SendGrid {
	if lgr == nil {
		lgr = logger.Nop()
	}
	opts := []xhttp.ClientOption{xhttp.WithHeader("Authorization", "Bearer "+apiKey)}
	if timeout > 0 {
		opts = append(opts, xhttp.WithTimeout(timeout))
	}
	return &SendGrid{
		sender: sender,
		url:    url,
		client: xhttp.NewClient(opts...),
		logger: lgr.Named("mail.sendgrid"),
	}
}

func (s *SendGrid) SendEmail(ctx context.Context, receiverEmail, subject, body string) error {
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.url,
		Body: sendGridMessage{
			Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: receiverEmail}}}},
			From:             sendGridAddress{Email: s.sender.Email, Name: s.sender.Name},
			Subject:          subject,
			Content:          []sendGridContent{{Type: "text/html", Value: body}},
		},
	}, nil)
	if err != nil {
		s.logger.Error("error sending email", logger.String("to", receiverEmail), logger.Error(err))
		return deliveryError("sendgrid", err)
	}
	s.logger.Info("production email sent successfully", logger.String("to", receiverEmail))
	return nil
}
