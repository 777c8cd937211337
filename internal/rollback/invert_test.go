package rollback

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/opensource-finance/moim/internal/domain"
)

func TestInvert(t *testing.T) {
	snapshot := json.RawMessage(`{"title":"공지"}`)

	for _, et := range domain.EntityTypes {
		wantID := "item-1"
		if et.Singleton() {
			wantID = domain.SingletonID
		}

		t.Run(string(et)+"/Create", func(t *testing.T) {
			op, err := Invert(&domain.ContentChange{EntityType: et, EntityID: "item-1", Action: domain.ActionCreate, After: snapshot})
			if err != nil {
				t.Fatalf("Invert failed: %v", err)
			}
			if op.Kind != OpDelete || op.EntityID != wantID || !op.RequireTarget {
				t.Errorf("unexpected op: %+v", op)
			}
		})

		t.Run(string(et)+"/Update", func(t *testing.T) {
			op, err := Invert(&domain.ContentChange{EntityType: et, EntityID: "item-1", Action: domain.ActionUpdate, Before: snapshot, After: json.RawMessage(`{}`)})
			if err != nil {
				t.Fatalf("Invert failed: %v", err)
			}
			if op.Kind != OpRestore || string(op.Data) != string(snapshot) || !op.RequireTarget {
				t.Errorf("unexpected op: %+v", op)
			}
		})

		t.Run(string(et)+"/Delete", func(t *testing.T) {
			op, err := Invert(&domain.ContentChange{EntityType: et, EntityID: "item-1", Action: domain.ActionDelete, Before: snapshot})
			if err != nil {
				t.Fatalf("Invert failed: %v", err)
			}
			if op.Kind != OpRestore || op.EntityID != wantID || op.RequireTarget {
				t.Errorf("unexpected op: %+v", op)
			}
		})
	}
}

func TestInvertErrors(t *testing.T) {
	tests := []struct {
		name   string
		change domain.ContentChange
		want   error
	}{
		{"UnknownAction", domain.ContentChange{EntityType: domain.EntityPopup, EntityID: "p1", Action: "PATCH"}, ErrUnknownAction},
		{"UnknownEntity", domain.ContentChange{EntityType: "Footer", EntityID: "f1", Action: domain.ActionCreate}, ErrUnknownEntity},
		{"MissingID", domain.ContentChange{EntityType: domain.EntitySiteSection, Action: domain.ActionCreate}, ErrUnknownEntity},
		{"UpdateWithoutSnapshot", domain.ContentChange{EntityType: domain.EntityPopup, EntityID: "p1", Action: domain.ActionUpdate}, ErrMissingSnapshot},
		{"DeleteWithNullSnapshot", domain.ContentChange{EntityType: domain.EntityPopup, EntityID: "p1", Action: domain.ActionDelete, Before: json.RawMessage("null")}, ErrMissingSnapshot},
		{"ArraySnapshot", domain.ContentChange{EntityType: domain.EntityPopup, EntityID: "p1", Action: domain.ActionDelete, Before: json.RawMessage("[1]")}, ErrInvalidSnapshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Invert(&tt.change)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
