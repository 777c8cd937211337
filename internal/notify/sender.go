package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/opensource-finance/moim/internal/domain"
)

// Sender delivers notifications on one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, n *domain.Notification) error
}

// LogSender delivers in-app notifications. The persisted notification log is
// what the member sees, so delivery is a structured log line.
type LogSender struct{}

// Channel implements Sender.
func (LogSender) Channel() string { return domain.ChannelInApp }

// Send implements Sender.
func (LogSender) Send(ctx context.Context, n *domain.Notification) error {
	slog.InfoContext(ctx, "in-app notification",
		"tenant_id", n.TenantID,
		"notification_id", n.ID,
		"recipient", n.Recipient,
		"type", n.Type,
	)
	return nil
}

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// SendGridSender delivers email notifications through the SendGrid v3 API.
type SendGridSender struct {
	key        string
	from       *sgmail.Email
	subjPrefix string

	// Host is the API base URL.
	Host string
}

// NewSendGridSender creates an email sender.
func NewSendGridSender(key, fromName, fromEmail string) *SendGridSender {
	return &SendGridSender{
		key:        key,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
		Host:       sendGridHost,
	}
}

// Channel implements Sender.
func (s *SendGridSender) Channel() string { return domain.ChannelEmail }

// Send implements Sender. Recipient is the destination address.
func (s *SendGridSender) Send(ctx context.Context, n *domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + n.Title
	p.AddTos(sgmail.NewEmail("", n.Recipient))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", n.Body))

	req := sendgrid.GetRequest(s.key, sendGridEndpoint, s.Host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid returned status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
