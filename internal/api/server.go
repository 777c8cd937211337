package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/moim/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, svc Services) *Server {
	handler := NewHandler(svc)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)                 // CORS for browser clients
	router.Use(RecoverMiddleware)              // Recover from panics
	router.Use(TracingMiddleware)              // OpenTelemetry tracing
	router.Use(LoggingMiddleware)              // Request logging
	router.Use(MetricsMiddleware(svc.Metrics)) // Prometheus request metrics
	router.Use(middleware.RealIP)              // Extract real IP
	router.Use(middleware.Compress(5))         // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if svc.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())
	}

	// API routes (tenant required)
	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Programs
		r.Get("/programs", handler.ListPrograms)
		r.Get("/programs/{id}", handler.GetProgram)
		r.Get("/programs/{id}/sessions", handler.ListSessions)

		// Member views
		r.Get("/programs/{id}/members/{memberId}/stats", handler.MemberStats)
		r.Get("/programs/{id}/members/{memberId}/refund", handler.RefundPreview)

		// Surveys
		r.Post("/programs/{id}/surveys", handler.SubmitSurvey)

		// Admin routes (bearer token required)
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminMiddleware(svc.Auth))

			// Program management
			r.Post("/programs", handler.CreateProgram)
			r.Put("/programs/{id}", handler.UpdateProgram)
			r.Get("/programs/{id}/enrollments", handler.ListEnrollments)
			r.Post("/programs/{id}/enrollments", handler.Enroll)
			r.Post("/programs/{id}/attendance", handler.MarkAttendance)
			r.Post("/programs/{id}/reports", handler.MarkReport)

			// Deposits and refunds
			r.Get("/programs/{id}/deposit", handler.GetDeposit)
			r.Put("/programs/{id}/deposit", handler.PutDeposit)
			r.Get("/programs/{id}/refunds.xlsx", handler.ExportRefunds)
			r.Post("/refunds/simulate", handler.Simulate)

			// Refund policy management
			r.Post("/policies/reload", handler.ReloadPolicies)
			r.Get("/policies/{programId}", handler.GetPolicy)
			r.Put("/policies/{programId}", handler.PutPolicy)

			// Content and rollback
			r.Get("/content/changes", handler.ListChanges)
			r.Post("/content/changes/{id}/rollback", handler.RollbackChange)
			r.Get("/content/{type}", handler.ListContent)
			r.Get("/content/{type}/{id}", handler.GetContent)
			r.Put("/content/{type}/{id}", handler.PutContent)
			r.Delete("/content/{type}/{id}", handler.DeleteContent)

			// Notification log
			r.Get("/notifications", handler.ListNotifications)
			r.Post("/notifications", handler.RequestNotification)
			r.Get("/notifications/{id}", handler.GetNotification)
			r.Post("/notifications/{id}/resend", handler.ResendNotification)
		})
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
