package rollback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/metrics"
	"github.com/opensource-finance/moim/internal/repository"
)

var (
	// ErrChangeNotFound is returned for unknown change IDs.
	ErrChangeNotFound = errors.New("change not found")

	// ErrAlreadyRolledBack is returned when the change was reverted before.
	ErrAlreadyRolledBack = errors.New("change already rolled back")

	// ErrTargetMissing is returned when the entity a CREATE or UPDATE touched no longer exists.
	ErrTargetMissing = errors.New("rollback target no longer exists")

	// ErrTargetExists is returned when a deleted entity was recreated since.
	ErrTargetExists = errors.New("rollback target was recreated")
)

// Service reverts single content changes.
type Service struct {
	repo    domain.Repository
	bus     domain.EventBus
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a rollback service. bus and m may be nil.
func NewService(repo domain.Repository, bus domain.EventBus, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		bus:     bus,
		metrics: m,
		now:     time.Now,
	}
}

// Rollback reverts the change changeID in one transaction: the inverse is
// applied, the change is marked rolled back and the rollback itself is logged
// as a new change, which is returned.
func (s *Service) Rollback(ctx context.Context, tenantID, changeID, actor string) (*domain.ContentChange, error) {
	var (
		target   *domain.ContentChange
		recorded *domain.ContentChange
	)

	err := s.repo.WithTx(ctx, func(tx domain.Repository) error {
		c, err := tx.GetChange(ctx, tenantID, changeID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrChangeNotFound
		}
		if err != nil {
			return err
		}
		target = c

		if c.RolledBackAt != nil {
			return ErrAlreadyRolledBack
		}

		op, err := Invert(c)
		if err != nil {
			return err
		}

		current, err := tx.GetContent(ctx, tenantID, op.EntityType, op.EntityID)
		exists := err == nil
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if op.RequireTarget && !exists {
			return ErrTargetMissing
		}
		if !op.RequireTarget && exists {
			return ErrTargetExists
		}

		now := s.now().UTC()
		recorded = &domain.ContentChange{
			ID:         uuid.New().String(),
			TenantID:   tenantID,
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Actor:      actor,
			CreatedAt:  now,
			RollbackOf: c.ID,
		}

		switch op.Kind {
		case OpDelete:
			if err := tx.DeleteContent(ctx, tenantID, op.EntityType, op.EntityID); err != nil {
				return err
			}
			recorded.Action = domain.ActionDelete
			recorded.Before = current.Data
		case OpRestore:
			if err := tx.PutContent(ctx, tenantID, &domain.ContentEntity{
				TenantID:  tenantID,
				Type:      op.EntityType,
				ID:        op.EntityID,
				Data:      op.Data,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
			recorded.Action = domain.ActionCreate
			if exists {
				recorded.Action = domain.ActionUpdate
				recorded.Before = current.Data
			}
			recorded.After = op.Data
		}

		if err := tx.MarkRolledBack(ctx, tenantID, c.ID, now); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAlreadyRolledBack
			}
			return err
		}
		return tx.SaveChange(ctx, tenantID, recorded)
	})

	entityType := "unknown"
	if target != nil {
		entityType = string(target.EntityType)
	}
	if err != nil {
		s.metrics.ObserveRollback(entityType, resultLabel(err))
		slog.Warn("content rollback failed",
			"tenant_id", tenantID,
			"change_id", changeID,
			"error", err,
		)
		return nil, err
	}
	s.metrics.ObserveRollback(entityType, "ok")

	slog.Info("content change rolled back",
		"tenant_id", tenantID,
		"change_id", changeID,
		"entity_type", recorded.EntityType,
		"entity_id", recorded.EntityID,
		"actor", actor,
	)

	s.publish(ctx, tenantID, domain.ContentRolledBackEvent{
		ChangeID:   changeID,
		EntityType: recorded.EntityType,
		EntityID:   recorded.EntityID,
		Actor:      actor,
	})

	return recorded, nil
}

func (s *Service) publish(ctx context.Context, tenantID string, ev domain.ContentRolledBackEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal rollback event", "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, domain.TopicContentRolledBack, payload); err != nil {
		slog.Warn("failed to publish rollback event", "tenant_id", tenantID, "error", err)
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrChangeNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyRolledBack):
		return "already_rolled_back"
	case errors.Is(err, ErrTargetMissing), errors.Is(err, ErrTargetExists):
		return "conflict"
	case errors.Is(err, ErrUnknownAction), errors.Is(err, ErrUnknownEntity),
		errors.Is(err, ErrMissingSnapshot), errors.Is(err, ErrInvalidSnapshot):
		return "invalid"
	default:
		return "error"
	}
}
