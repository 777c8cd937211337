package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/opensource-finance/moim/internal/domain"
)

// Worker turns bus events into notifications.
type Worker struct {
	bus        domain.EventBus
	dispatcher *Dispatcher

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs limits the worker to these tenants (empty = all tenants)
	TenantIDs []string
}

// Topics lists the topics the worker consumes.
var Topics = []string{
	domain.TopicNotificationRequested,
	domain.TopicRefundCalculated,
	domain.TopicContentRolledBack,
}

// NewWorker creates a new notification worker.
func NewWorker(bus domain.EventBus, dispatcher *Dispatcher) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:        bus,
		dispatcher: dispatcher,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the notification topics for the given tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.WildcardTenant}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, tenantID := range tenants {
		for _, topic := range Topics {
			sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, w.handleMessage)
			if err != nil {
				slog.Error("failed to subscribe notification worker",
					"tenant_id", tenantID,
					"topic", topic,
					"error", err,
				)
				return err
			}
			w.subscriptions = append(w.subscriptions, sub)
		}
	}

	slog.Info("notification worker started",
		"tenants", tenants,
		"subscriptions", len(w.subscriptions),
	)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.NotificationRequest

	switch msg.Topic {
	case domain.TopicRefundCalculated:
		var ev domain.RefundCalculatedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return w.malformed(msg, err)
		}
		req = RefundRequest(ev)

	case domain.TopicContentRolledBack:
		var ev domain.ContentRolledBackEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return w.malformed(msg, err)
		}
		req = RollbackRequest(ev)

	case domain.TopicNotificationRequested:
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return w.malformed(msg, err)
		}

	default:
		return nil
	}

	sent, err := w.dispatcher.Dispatch(ctx, msg.TenantID, req)
	if err != nil {
		slog.Error("failed to dispatch notification",
			"tenant_id", msg.TenantID,
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}

	slog.Debug("notification dispatched",
		"tenant_id", msg.TenantID,
		"topic", msg.Topic,
		"deliveries", len(sent),
	)
	return nil
}

func (w *Worker) malformed(msg *domain.Message, err error) error {
	slog.Error("failed to parse notification event",
		"message_id", msg.ID,
		"topic", msg.Topic,
		"error", err,
	)
	return err
}

// Stop unsubscribes the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("notification worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
