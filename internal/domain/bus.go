package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (community) or NATS (pro).
// All methods require tenantID for strict multi-tenancy isolation.
// Subscribing with WildcardTenant receives the topic for every tenant.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `env:"TYPE" envDefault:"channel"`

	// Channel settings
	ChannelBufferSize int `env:"CHANNEL_BUFFER" envDefault:"1000"`

	// NATS settings
	NATSUrl           string `env:"NATS_URL"`
	NATSToken         string `env:"NATS_TOKEN"`
	NATSMaxReconnects int    `env:"NATS_MAX_RECONNECTS" envDefault:"10"`
	NATSReconnectWait int    `env:"NATS_RECONNECT_WAIT" envDefault:"5"` // seconds
}

// WildcardTenant subscribes to a topic across all tenants.
// It is also the tenant ID of global (all-tenant) policy tables.
const WildcardTenant = "*"

// Standard topic names.
const (
	TopicSurveySubmitted       = "moim.survey.submitted"
	TopicRefundCalculated      = "moim.refund.calculated"
	TopicNotificationRequested = "moim.notification.requested"
	TopicContentRolledBack     = "moim.content.rolledback"
	TopicPolicyUpdated         = "moim.policy.updated"
)
