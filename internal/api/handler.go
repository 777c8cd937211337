package api

import (
	"net/http"
	"strconv"

	"github.com/opensource-finance/moim/internal/cache"
	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/export"
	"github.com/opensource-finance/moim/internal/metrics"
	"github.com/opensource-finance/moim/internal/notify"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/rollback"
	"github.com/opensource-finance/moim/internal/stats"
	"github.com/opensource-finance/moim/internal/survey"
)

// Services are the dependencies of the API handlers.
type Services struct {
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Engine    *refund.Engine
	Refunds   *refund.Service
	Stats     *stats.Service
	Surveys   *survey.Processor
	Content   *rollback.ContentService
	Rollbacks *rollback.Service
	Notifier  *notify.Dispatcher
	Exporter  *export.Exporter
	Metrics   *metrics.Metrics
	Auth      domain.AuthConfig
	Version   string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *refund.Engine
	refunds   *refund.Service
	stats     *stats.Service
	surveys   *survey.Processor
	content   *rollback.ContentService
	rollbacks *rollback.Service
	notifier  *notify.Dispatcher
	exporter  *export.Exporter
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(svc Services) *Handler {
	return &Handler{
		repo:      svc.Repo,
		cache:     svc.Cache,
		bus:       svc.Bus,
		engine:    svc.Engine,
		refunds:   svc.Refunds,
		stats:     svc.Stats,
		surveys:   svc.Surveys,
		content:   svc.Content,
		rollbacks: svc.Rollbacks,
		notifier:  svc.Notifier,
		exporter:  svc.Exporter,
		version:   svc.Version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"ready":    true,
		"policies": h.engine.Count(),
	}
	if c, ok := h.cache.(interface{ Stats() cache.Stats }); ok {
		resp["cache"] = c.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// listResponse wraps collection responses.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
