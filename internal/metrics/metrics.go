// Package metrics owns the Prometheus registry shared by both servers.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	app      string

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	cacheOperations  *prometheus.CounterVec
	authAttempts     *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	reportsSubmitted prometheus.Counter
	exportsTotal     *prometheus.CounterVec
	buildInfo        *prometheus.GaugeVec
}

// New creates a registry with Go and process collectors plus the
// application metrics, labelled with app.
func New(app, version string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		app:      app,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"app", "method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"app", "method", "route"}),
		cacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Statistics cache operations by outcome.",
		}, []string{"app", "op", "result"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Admin login attempts by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_rejections_total",
			Help: "Requests rejected by a rate limiter.",
		}, []string{"app", "limiter"}),
		reportsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reports_submitted_total",
			Help: "Reports accepted from the public form.",
		}),
		exportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exports_total",
			Help: "Completed report exports.",
		}, []string{"audience", "format"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sanandem_build_info",
			Help: "Constant 1, labelled with the running version.",
		}, []string{"app", "version"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.cacheOperations,
		m.authAttempts,
		m.rateLimited,
		m.reportsSubmitted,
		m.exportsTotal,
		m.buildInfo,
	)
	m.buildInfo.WithLabelValues(app, version).Set(1)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(m.app, method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(m.app, method, route).Observe(d.Seconds())
}

// CacheOperation counts a cache outcome. Its signature matches cache.Observer.
func (m *Metrics) CacheOperation(op, result string) {
	if m == nil {
		return
	}
	m.cacheOperations.WithLabelValues(m.app, op, result).Inc()
}

// AuthAttempt counts a login attempt.
func (m *Metrics) AuthAttempt(result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

// RateLimited counts a rejection by the named limiter.
func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(m.app, limiter).Inc()
}

// ReportSubmitted counts an accepted public report.
func (m *Metrics) ReportSubmitted() {
	if m == nil {
		return
	}
	m.reportsSubmitted.Inc()
}

// ExportCompleted counts a finished export.
func (m *Metrics) ExportCompleted(audience, format string) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(audience, format).Inc()
}
