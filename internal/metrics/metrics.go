// Package metrics exposes Prometheus collectors for moim.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	refunds       *prometheus.CounterVec
	refundAmount  prometheus.Counter
	notifications *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moim",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moim",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moim",
			Name:      "refund_evaluations_total",
			Help:      "Refund calculations by outcome.",
		}, []string{"outcome"}),
		refundAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moim",
			Name:      "refund_amount_won_total",
			Help:      "Sum of calculated refund amounts in won.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moim",
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and final status.",
		}, []string{"channel", "status"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moim",
			Name:      "content_rollbacks_total",
			Help:      "Content rollbacks by entity type and result.",
		}, []string{"entity_type", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.refunds,
		m.refundAmount,
		m.notifications,
		m.rollbacks,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveRefund records one refund calculation.
func (m *Metrics) ObserveRefund(outcome string, amount int64) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(outcome).Inc()
	if amount > 0 {
		m.refundAmount.Add(float64(amount))
	}
}

// ObserveNotification records the final status of one notification.
func (m *Metrics) ObserveNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, status).Inc()
}

// ObserveRollback records one rollback attempt.
func (m *Metrics) ObserveRollback(entityType, result string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(entityType, result).Inc()
}
