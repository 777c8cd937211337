// Package notify renders and delivers member and admin notifications and
// keeps the notification log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/metrics"
)

// ErrNoRecipient is returned for requests without a recipient.
var ErrNoRecipient = errors.New("notification recipient is required")

// DispatcherConfig holds retry settings.
type DispatcherConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// Dispatcher delivers notifications through the configured senders and
// persists each delivery with its final status.
type Dispatcher struct {
	repo    domain.NotificationStore
	senders map[string]Sender
	metrics *metrics.Metrics
	cfg     DispatcherConfig
	now     func() time.Time
}

// NewDispatcher creates a dispatcher. Channels without a sender are logged as SKIPPED.
func NewDispatcher(repo domain.NotificationStore, m *metrics.Metrics, cfg DispatcherConfig, senders ...Sender) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	d := &Dispatcher{
		repo:    repo,
		senders: make(map[string]Sender, len(senders)),
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, s := range senders {
		d.senders[s.Channel()] = s
	}
	return d
}

// Dispatch renders req and delivers it on every channel its type resolves to.
// Delivery failures are recorded on the returned notifications, not returned as errors.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, req domain.NotificationRequest) ([]*domain.Notification, error) {
	if req.Recipient == "" {
		return nil, ErrNoRecipient
	}
	req = Render(req)

	var out []*domain.Notification
	for _, channel := range ResolveDeliveryPolicy(req.Type, req.RecipientEmail != "") {
		recipient := req.Recipient
		if channel == domain.ChannelEmail {
			recipient = req.RecipientEmail
		}

		n := &domain.Notification{
			ID:        uuid.New().String(),
			TenantID:  tenantID,
			Recipient: recipient,
			Channel:   channel,
			Type:      req.Type,
			Title:     req.Title,
			Body:      req.Body,
			Status:    domain.NotificationPending,
			CreatedAt: d.now().UTC(),
		}
		if err := d.deliver(ctx, n); err != nil {
			return out, err
		}
		out = append(out, n)
	}
	return out, nil
}

// Resend delivers a logged notification again.
func (d *Dispatcher) Resend(ctx context.Context, tenantID, id string) (*domain.Notification, error) {
	n, err := d.repo.GetNotification(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := d.deliver(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// deliver sends n with retries and persists the outcome.
// Only persistence errors are returned.
func (d *Dispatcher) deliver(ctx context.Context, n *domain.Notification) error {
	sender, ok := d.senders[n.Channel]
	if !ok {
		n.Status = domain.NotificationSkipped
		n.Error = fmt.Sprintf("no sender for channel %s", n.Channel)
	} else {
		n.Status = domain.NotificationFailed
		attempt := 0
		err := retry.Do(ctx, d.backoff(), func(ctx context.Context) error {
			attempt++
			n.Attempts++
			if err := sender.Send(ctx, n); err != nil {
				n.Error = err.Error()
				slog.Warn("notification delivery failed",
					"tenant_id", n.TenantID,
					"notification_id", n.ID,
					"channel", n.Channel,
					"attempt", attempt,
					"error", err,
				)
				return retry.RetryableError(err)
			}
			return nil
		})
		if err == nil {
			sentAt := d.now().UTC()
			n.Status = domain.NotificationSent
			n.Error = ""
			n.SentAt = &sentAt
		}
	}

	d.metrics.ObserveNotification(n.Channel, string(n.Status))

	if err := d.repo.SaveNotification(ctx, n.TenantID, n); err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// backoff allows MaxAttempts sends spaced by RetryDelay.
func (d *Dispatcher) backoff() retry.Backoff {
	delay := d.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	return retry.WithMaxRetries(uint64(d.cfg.MaxAttempts-1), retry.NewConstant(delay))
}
