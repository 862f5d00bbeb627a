// Package metrics exposes Prometheus collectors for the API and the
// domain operations behind it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the server
type Metrics struct {
	gatherer prometheus.Gatherer

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthAttemptsTotal *prometheus.CounterVec

	TicketOperationsTotal *prometheus.CounterVec
	LimitRejectionsTotal  *prometheus.CounterVec
	GateRejectionsTotal   *prometheus.CounterVec
	AIRequestsTotal       *prometheus.CounterVec
	AIRequestDuration     prometheus.Histogram
	BackupOperationsTotal *prometheus.CounterVec
	EventsPublishedTotal  *prometheus.CounterVec
}

// New registers the collectors under namespace with reg. A nil reg uses a
// private registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Login attempts by principal type and result",
			},
			[]string{"user_type", "result"},
		),
		TicketOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticket_operations_total",
				Help:      "Ticket mutations by operation",
			},
			[]string{"operation"},
		),
		LimitRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_limit_rejections_total",
				Help:      "Creations refused because the plan cap was reached",
			},
			[]string{"resource", "plan"},
		),
		GateRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_rejections_total",
				Help:      "Requests refused by subscription, maintenance or AI gates",
			},
			[]string{"reason"},
		),
		AIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_requests_total",
				Help:      "Assistant provider calls by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),
		AIRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_request_duration_seconds",
				Help:      "Duration of assistant provider calls in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		BackupOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backup_operations_total",
				Help:      "Backup operations by kind and result",
			},
			[]string{"operation", "result"},
		),
		EventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published by type and result",
			},
			[]string{"type", "result"},
		),
	}
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Result labels an outcome
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// TrackAI returns a function that records the duration and outcome of a
// provider call
func (m *Metrics) TrackAI(endpoint string) func(err error) {
	start := time.Now()
	return func(err error) {
		m.AIRequestDuration.Observe(time.Since(start).Seconds())
		m.AIRequestsTotal.WithLabelValues(endpoint, Result(err)).Inc()
	}
}
