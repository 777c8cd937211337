package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/moim/internal/domain"
)

const (
	resendLimit  = 5
	resendWindow = time.Hour
)

// ErrResendLimited is returned when a notification was resent too often.
var ErrResendLimited = errors.New("notification resend limit reached")

// ListNotifications handles GET /admin/notifications?status=&type=&limit=&offset=.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, okLimit := queryInt(r, "limit", 50)
	offset, okOffset := queryInt(r, "offset", 0)
	if !okLimit || !okOffset {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalid})
		return
	}

	q := r.URL.Query()
	items, err := h.repo.ListNotifications(r.Context(), GetTenantID(r.Context()), domain.NotificationFilter{
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items))
}

// GetNotification handles GET /admin/notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.repo.GetNotification(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ResendNotification handles POST /admin/notifications/{id}/resend.
func (h *Handler) ResendNotification(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if h.cache != nil {
		count, err := h.cache.IncrementCounter(r.Context(), tenantID, "resend:"+id, resendWindow)
		if err != nil {
			slog.Warn("failed to count resends", "notification_id", id, "error", err)
		} else if count > resendLimit {
			writeError(w, r, ErrResendLimited)
			return
		}
	}

	n, err := h.notifier.Resend(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// NotificationPost is the request body for POST /admin/notifications.
type NotificationPost struct {
	Recipient      string `json:"recipient" validate:"required"`
	RecipientEmail string `json:"recipientEmail" validate:"omitempty,email"`
	Type           string `json:"type" validate:"omitempty,oneof=generic survey.reminder"`
	Title          string `json:"title" validate:"max=200"`
	Body           string `json:"body" validate:"max=5000"`
}

// RequestNotification handles POST /admin/notifications.
// The request is queued on the bus and delivered by the notification worker.
func (h *Handler) RequestNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationPost
	if !decode(w, r, &req) {
		return
	}

	msgType := req.Type
	if msgType == "" {
		msgType = domain.MessageGeneric
	}

	payload, err := json.Marshal(domain.NotificationRequest{
		Recipient:      req.Recipient,
		RecipientEmail: req.RecipientEmail,
		Type:           msgType,
		Title:          req.Title,
		Body:           req.Body,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.bus.Publish(r.Context(), GetTenantID(r.Context()), domain.TopicNotificationRequested, payload); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
