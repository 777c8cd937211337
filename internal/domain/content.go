package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies a kind of editable site content.
type EntityType string

const (
	EntitySiteSection        EntityType = "SiteSection"
	EntitySiteSettings       EntityType = "SiteSettings"
	EntityAnnouncementBanner EntityType = "AnnouncementBanner"
	EntityFloatingButton     EntityType = "FloatingButton"
	EntitySEOSettings        EntityType = "SEOSettings"
	EntityPopup              EntityType = "Popup"
)

// SingletonID is the fixed ID of singleton entity kinds.
const SingletonID = "default"

// EntityTypes lists every content entity kind.
var EntityTypes = []EntityType{
	EntitySiteSection,
	EntitySiteSettings,
	EntityAnnouncementBanner,
	EntityFloatingButton,
	EntitySEOSettings,
	EntityPopup,
}

// Valid reports whether t is a known entity kind.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Singleton reports whether t has exactly one instance per tenant.
func (t EntityType) Singleton() bool {
	return t == EntitySiteSettings || t == EntitySEOSettings
}

// ContentEntity is a stored content item. Data holds the kind-specific JSON document.
type ContentEntity struct {
	TenantID  string          `json:"tenantId"`
	Type      EntityType      `json:"type"`
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ChangeAction is the kind of mutation a change log entry records.
type ChangeAction string

const (
	ActionCreate ChangeAction = "CREATE"
	ActionUpdate ChangeAction = "UPDATE"
	ActionDelete ChangeAction = "DELETE"
)

// ContentChange is one entry of the content change log.
// Before is nil for CREATE and After is nil for DELETE.
type ContentChange struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenantId"`
	EntityType   EntityType      `json:"entityType"`
	EntityID     string          `json:"entityId"`
	Action       ChangeAction    `json:"action"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	Actor        string          `json:"actor"`
	CreatedAt    time.Time       `json:"createdAt"`
	RolledBackAt *time.Time      `json:"rolledBackAt,omitempty"`
	RollbackOf   string          `json:"rollbackOf,omitempty"`
}

// ChangeFilter narrows a change log listing.
type ChangeFilter struct {
	EntityType EntityType
	EntityID   string
	Limit      int
	Offset     int
}
