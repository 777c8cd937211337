package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/moim/internal/domain"
)

// ContentResponse is returned after a content write.
type ContentResponse struct {
	Entity *domain.ContentEntity `json:"entity,omitempty"`
	Change *domain.ContentChange `json:"change"`
}

// ListContent handles GET /admin/content/{type}.
func (h *Handler) ListContent(w http.ResponseWriter, r *http.Request) {
	items, err := h.content.List(r.Context(), GetTenantID(r.Context()), domain.EntityType(chi.URLParam(r, "type")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items))
}

// GetContent handles GET /admin/content/{type}/{id}.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	entity, err := h.content.Get(r.Context(), GetTenantID(r.Context()),
		domain.EntityType(chi.URLParam(r, "type")), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// PutContent handles PUT /admin/content/{type}/{id}. The body is the entity document.
func (h *Handler) PutContent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidJSON})
		return
	}

	entity, change, err := h.content.Save(r.Context(), GetTenantID(r.Context()),
		domain.EntityType(chi.URLParam(r, "type")), chi.URLParam(r, "id"),
		json.RawMessage(body), GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if change.Action == domain.ActionCreate {
		status = http.StatusCreated
	}
	writeJSON(w, status, ContentResponse{Entity: entity, Change: change})
}

// DeleteContent handles DELETE /admin/content/{type}/{id}.
func (h *Handler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	change, err := h.content.Delete(r.Context(), GetTenantID(r.Context()),
		domain.EntityType(chi.URLParam(r, "type")), chi.URLParam(r, "id"), GetActor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContentResponse{Change: change})
}

// ListChanges handles GET /admin/content/changes?type=&entityId=&limit=&offset=.
func (h *Handler) ListChanges(w http.ResponseWriter, r *http.Request) {
	limit, okLimit := queryInt(r, "limit", 50)
	offset, okOffset := queryInt(r, "offset", 0)
	if !okLimit || !okOffset {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalid})
		return
	}

	q := r.URL.Query()
	changes, err := h.content.Changes(r.Context(), GetTenantID(r.Context()), domain.ChangeFilter{
		EntityType: domain.EntityType(q.Get("type")),
		EntityID:   q.Get("entityId"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(changes))
}

// RollbackChange handles POST /admin/content/changes/{id}/rollback.
func (h *Handler) RollbackChange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	changeID := chi.URLParam(r, "id")

	change, err := h.rollbacks.Rollback(ctx, GetTenantID(ctx), changeID, GetActor(ctx))
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("content change rolled back",
		"tenant_id", GetTenantID(ctx),
		"change_id", changeID,
		"entity_type", change.EntityType,
		"entity_id", change.EntityID,
		"actor", GetActor(ctx),
	)
	writeJSON(w, http.StatusOK, change)
}
