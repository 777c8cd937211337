package domain

import (
	"time"
)

// NotificationStatus is the delivery state of a notification.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
	NotificationSkipped NotificationStatus = "SKIPPED"
)

// Notification channels.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Notification message types.
const (
	MessageRefundCalculated  = "refund.calculated"
	MessageSurveyReminder    = "survey.reminder"
	MessageContentRolledBack = "content.rolled_back"
	MessageGeneric           = "generic"
)

// Notification is one persisted delivery to one recipient on one channel.
type Notification struct {
	ID        string             `json:"id"`
	TenantID  string             `json:"tenantId"`
	Recipient string             `json:"recipient"`
	Channel   string             `json:"channel"`
	Type      string             `json:"type"`
	Title     string             `json:"title"`
	Body      string             `json:"body"`
	Status    NotificationStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	SentAt    *time.Time         `json:"sentAt,omitempty"`
}

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

// NotificationRequest is the bus payload of moim.notification.requested.
type NotificationRequest struct {
	Recipient      string            `json:"recipient"`
	RecipientEmail string            `json:"recipientEmail,omitempty"`
	Type           string            `json:"type"`
	Title          string            `json:"title,omitempty"`
	Body           string            `json:"body,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
}

// RefundCalculatedEvent is the bus payload of moim.refund.calculated.
type RefundCalculatedEvent struct {
	ProgramID   string            `json:"programId"`
	ProgramName string            `json:"programName"`
	MemberID    string            `json:"memberId"`
	MemberName  string            `json:"memberName"`
	MemberEmail string            `json:"memberEmail,omitempty"`
	Refund      RefundCalculation `json:"refund"`
}

// ContentRolledBackEvent is the bus payload of moim.content.rolledback.
type ContentRolledBackEvent struct {
	ChangeID   string     `json:"changeId"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Actor      string     `json:"actor"`
}
