package rollback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/repository"
)

// ErrContentNotFound is returned when the addressed content does not exist.
var ErrContentNotFound = errors.New("content not found")

// ContentService edits site content and logs every change with snapshots.
type ContentService struct {
	repo domain.Repository
	now  func() time.Time
}

// NewContentService creates a content service.
func NewContentService(repo domain.Repository) *ContentService {
	return &ContentService{repo: repo, now: time.Now}
}

// Get returns one content entity.
func (s *ContentService) Get(ctx context.Context, tenantID string, t domain.EntityType, id string) (*domain.ContentEntity, error) {
	id, err := targetID(t, id)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.GetContent(ctx, tenantID, t, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrContentNotFound
	}
	return e, err
}

// List returns every entity of one kind.
func (s *ContentService) List(ctx context.Context, tenantID string, t domain.EntityType) ([]*domain.ContentEntity, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, t)
	}
	return s.repo.ListContent(ctx, tenantID, t)
}

// Changes returns change log entries, newest first.
func (s *ContentService) Changes(ctx context.Context, tenantID string, f domain.ChangeFilter) ([]*domain.ContentChange, error) {
	return s.repo.ListChanges(ctx, tenantID, f)
}

// Save creates or updates an entity and records the change.
func (s *ContentService) Save(ctx context.Context, tenantID string, t domain.EntityType, id string, data json.RawMessage, actor string) (*domain.ContentEntity, *domain.ContentChange, error) {
	id, err := targetID(t, id)
	if err != nil {
		return nil, nil, err
	}
	if err := checkSnapshot(data); err != nil {
		return nil, nil, fmt.Errorf("%w: content data must be a JSON object", repository.ErrInvalidInput)
	}

	now := s.now().UTC()
	entity := &domain.ContentEntity{
		TenantID:  tenantID,
		Type:      t,
		ID:        id,
		Data:      data,
		UpdatedAt: now,
	}
	change := &domain.ContentChange{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		EntityType: t,
		EntityID:   id,
		Action:     domain.ActionCreate,
		After:      data,
		Actor:      actor,
		CreatedAt:  now,
	}

	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		current, err := tx.GetContent(ctx, tenantID, t, id)
		switch {
		case err == nil:
			change.Action = domain.ActionUpdate
			change.Before = current.Data
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		if err := tx.PutContent(ctx, tenantID, entity); err != nil {
			return err
		}
		return tx.SaveChange(ctx, tenantID, change)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save content: %w", err)
	}

	return entity, change, nil
}

// Delete removes an entity and records the change.
func (s *ContentService) Delete(ctx context.Context, tenantID string, t domain.EntityType, id string, actor string) (*domain.ContentChange, error) {
	id, err := targetID(t, id)
	if err != nil {
		return nil, err
	}

	var change *domain.ContentChange
	err = s.repo.WithTx(ctx, func(tx domain.Repository) error {
		current, err := tx.GetContent(ctx, tenantID, t, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrContentNotFound
		}
		if err != nil {
			return err
		}

		if err := tx.DeleteContent(ctx, tenantID, t, id); err != nil {
			return err
		}

		change = &domain.ContentChange{
			ID:         uuid.New().String(),
			TenantID:   tenantID,
			EntityType: t,
			EntityID:   id,
			Action:     domain.ActionDelete,
			Before:     current.Data,
			Actor:      actor,
			CreatedAt:  s.now().UTC(),
		}
		return tx.SaveChange(ctx, tenantID, change)
	})
	if errors.Is(err, ErrContentNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete content: %w", err)
	}

	return change, nil
}
