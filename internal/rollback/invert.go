// Package rollback records content changes and reverts single changes
// from their stored snapshots.
package rollback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/moim/internal/domain"
)

var (
	// ErrUnknownAction is returned for change actions other than CREATE, UPDATE and DELETE.
	ErrUnknownAction = errors.New("unknown change action")

	// ErrUnknownEntity is returned for entity types outside the content kinds.
	ErrUnknownEntity = errors.New("unknown content entity type")

	// ErrMissingSnapshot is returned when an UPDATE or DELETE has no before snapshot.
	ErrMissingSnapshot = errors.New("change has no snapshot to restore")

	// ErrInvalidSnapshot is returned when the before snapshot is not a JSON object.
	ErrInvalidSnapshot = errors.New("change snapshot is not a JSON object")
)

// OpKind is what an inverse operation does to its target.
type OpKind string

const (
	// OpDelete removes the target entity.
	OpDelete OpKind = "DELETE"

	// OpRestore writes Data to the target entity, creating it if needed.
	OpRestore OpKind = "RESTORE"
)

// InverseOperation undoes one recorded change.
type InverseOperation struct {
	Kind       OpKind
	EntityType domain.EntityType
	EntityID   string
	Data       json.RawMessage

	// RequireTarget is set when the target must still exist for the inverse to apply.
	RequireTarget bool
}

// Invert returns the operation that reverts c.
//
//	CREATE -> delete the created entity
//	UPDATE -> restore the before snapshot onto the existing entity
//	DELETE -> recreate the entity from the before snapshot
func Invert(c *domain.ContentChange) (InverseOperation, error) {
	id, err := targetID(c.EntityType, c.EntityID)
	if err != nil {
		return InverseOperation{}, err
	}

	op := InverseOperation{EntityType: c.EntityType, EntityID: id}

	switch c.Action {
	case domain.ActionCreate:
		op.Kind = OpDelete
		op.RequireTarget = true
	case domain.ActionUpdate:
		if err := checkSnapshot(c.Before); err != nil {
			return InverseOperation{}, err
		}
		op.Kind = OpRestore
		op.Data = c.Before
		op.RequireTarget = true
	case domain.ActionDelete:
		if err := checkSnapshot(c.Before); err != nil {
			return InverseOperation{}, err
		}
		op.Kind = OpRestore
		op.Data = c.Before
	default:
		return InverseOperation{}, fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
	}

	return op, nil
}

// targetID resolves the stored ID of an entity. Singleton kinds always use
// domain.SingletonID.
func targetID(t domain.EntityType, id string) (string, error) {
	switch t {
	case domain.EntitySiteSettings, domain.EntitySEOSettings:
		return domain.SingletonID, nil
	case domain.EntitySiteSection, domain.EntityAnnouncementBanner,
		domain.EntityFloatingButton, domain.EntityPopup:
		if id == "" {
			return "", fmt.Errorf("%w: %s requires an id", ErrUnknownEntity, t)
		}
		return id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEntity, t)
	}
}

func checkSnapshot(data json.RawMessage) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrMissingSnapshot
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return ErrInvalidSnapshot
	}
	return nil
}
