package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/opensource-finance/moim/internal/domain"
)

const maxNotificationPage = 200

// SaveNotification creates or updates a notification log entry.
func (r *SQLRepository) SaveNotification(ctx context.Context, tenantID string, n *domain.Notification) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if n.ID == "" {
		return fmt.Errorf("%w: notification id is required", ErrInvalidInput)
	}

	var sentAt sql.NullTime
	if n.SentAt != nil {
		sentAt = sql.NullTime{Time: *n.SentAt, Valid: true}
	}

	query := `
		INSERT INTO notifications (
			id, tenant_id, recipient, channel, type, title, body,
			status, attempts, error, created_at, sent_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			error = excluded.error,
			sent_at = excluded.sent_at
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		n.ID, tenantID, n.Recipient, n.Channel, n.Type, n.Title, n.Body,
		string(n.Status), n.Attempts, n.Error, n.CreatedAt, sentAt,
	)
	return err
}

const notificationColumns = `id, tenant_id, recipient, channel, type, title, body,
			   status, attempts, error, created_at, sent_at`

func scanNotification(s rowScanner) (*domain.Notification, error) {
	var n domain.Notification
	var status string
	var sentAt sql.NullTime
	if err := s.Scan(
		&n.ID, &n.TenantID, &n.Recipient, &n.Channel, &n.Type, &n.Title, &n.Body,
		&status, &n.Attempts, &n.Error, &n.CreatedAt, &sentAt,
	); err != nil {
		return nil, err
	}
	n.Status = domain.NotificationStatus(status)
	if sentAt.Valid {
		t := sentAt.Time
		n.SentAt = &t
	}
	return &n, nil
}

// GetNotification retrieves a notification by ID with tenant isolation.
func (r *SQLRepository) GetNotification(ctx context.Context, tenantID string, id string) (*domain.Notification, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE tenant_id = ? AND id = ?`

	n, err := scanNotification(r.q.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

// ListNotifications retrieves notifications newest first, optionally filtered by status and type.
func (r *SQLRepository) ListNotifications(ctx context.Context, tenantID string, f domain.NotificationFilter) ([]*domain.Notification, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE tenant_id = ?`
	args := []any{tenantID}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}

	limit := f.Limit
	if limit <= 0 || limit > maxNotificationPage {
		limit = maxNotificationPage
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}
