package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/moim/internal/domain"
)

const maxChangePage = 200

// GetContent retrieves a content entity with tenant isolation.
func (r *SQLRepository) GetContent(ctx context.Context, tenantID string, t domain.EntityType, id string) (*domain.ContentEntity, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, entity_type, id, data, updated_at
		FROM content_entities
		WHERE tenant_id = ? AND entity_type = ? AND id = ?
	`

	e, err := scanContent(r.q.QueryRowContext(ctx, r.rebind(query), tenantID, string(t), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListContent retrieves every entity of one kind.
func (r *SQLRepository) ListContent(ctx context.Context, tenantID string, t domain.EntityType) ([]*domain.ContentEntity, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, entity_type, id, data, updated_at
		FROM content_entities
		WHERE tenant_id = ? AND entity_type = ?
		ORDER BY id
	`

	rows, err := r.q.QueryContext(ctx, r.rebind(query), tenantID, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*domain.ContentEntity
	for rows.Next() {
		e, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}

func scanContent(s rowScanner) (*domain.ContentEntity, error) {
	var e domain.ContentEntity
	var entityType, data string
	if err := s.Scan(&e.TenantID, &entityType, &e.ID, &data, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Type = domain.EntityType(entityType)
	e.Data = json.RawMessage(data)
	return &e, nil
}

// PutContent creates or replaces a content entity.
func (r *SQLRepository) PutContent(ctx context.Context, tenantID string, e *domain.ContentEntity) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if e.ID == "" || !e.Type.Valid() {
		return fmt.Errorf("%w: content type and id are required", ErrInvalidInput)
	}
	if !json.Valid(e.Data) {
		return fmt.Errorf("%w: content data must be JSON", ErrInvalidInput)
	}

	query := `
		INSERT INTO content_entities (tenant_id, entity_type, id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity_type, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query), tenantID, string(e.Type), e.ID, string(e.Data), e.UpdatedAt)
	return err
}

// DeleteContent removes a content entity. Returns ErrNotFound if it does not exist.
func (r *SQLRepository) DeleteContent(ctx context.Context, tenantID string, t domain.EntityType, id string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	query := `DELETE FROM content_entities WHERE tenant_id = ? AND entity_type = ? AND id = ?`

	result, err := r.q.ExecContext(ctx, r.rebind(query), tenantID, string(t), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SaveChange appends an entry to the content change log.
func (r *SQLRepository) SaveChange(ctx context.Context, tenantID string, c *domain.ContentChange) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if c.ID == "" {
		return fmt.Errorf("%w: change id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO content_changes (
			id, tenant_id, entity_type, entity_id, action, before_data, after_data,
			actor, created_at, rollback_of
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, string(c.EntityType), c.EntityID, string(c.Action),
		nullString(c.Before), nullString(c.After), c.Actor, c.CreatedAt, c.RollbackOf,
	)
	return err
}

const changeColumns = `id, tenant_id, entity_type, entity_id, action, before_data, after_data,
			   actor, created_at, rolled_back_at, rollback_of`

func scanChange(s rowScanner) (*domain.ContentChange, error) {
	var c domain.ContentChange
	var entityType, action string
	var before, after sql.NullString
	var rolledBackAt sql.NullTime
	if err := s.Scan(
		&c.ID, &c.TenantID, &entityType, &c.EntityID, &action, &before, &after,
		&c.Actor, &c.CreatedAt, &rolledBackAt, &c.RollbackOf,
	); err != nil {
		return nil, err
	}
	c.EntityType = domain.EntityType(entityType)
	c.Action = domain.ChangeAction(action)
	if before.Valid {
		c.Before = json.RawMessage(before.String)
	}
	if after.Valid {
		c.After = json.RawMessage(after.String)
	}
	if rolledBackAt.Valid {
		t := rolledBackAt.Time
		c.RolledBackAt = &t
	}
	return &c, nil
}

// GetChange retrieves a change log entry with tenant isolation.
func (r *SQLRepository) GetChange(ctx context.Context, tenantID string, id string) (*domain.ContentChange, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + changeColumns + ` FROM content_changes WHERE tenant_id = ? AND id = ?`

	c, err := scanChange(r.q.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListChanges retrieves change log entries newest first.
func (r *SQLRepository) ListChanges(ctx context.Context, tenantID string, f domain.ChangeFilter) ([]*domain.ContentChange, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + changeColumns + ` FROM content_changes WHERE tenant_id = ?`
	args := []any{tenantID}

	if f.EntityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(f.EntityType))
	}
	if f.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, f.EntityID)
	}

	limit := f.Limit
	if limit <= 0 || limit > maxChangePage {
		limit = maxChangePage
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

	var changes []*domain.ContentChange
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

// MarkRolledBack stamps a change as rolled back.
// Returns ErrNotFound if the change does not exist or was already rolled back.
func (r *SQLRepository) MarkRolledBack(ctx context.Context, tenantID string, id string, at time.Time) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	query := `
		UPDATE content_changes
		SET rolled_back_at = ?
		WHERE tenant_id = ? AND id = ? AND rolled_back_at IS NULL
	`

	result, err := r.q.ExecContext(ctx, r.rebind(query), at, tenantID, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}
