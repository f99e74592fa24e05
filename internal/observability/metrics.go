// Package observability collects the Prometheus metrics of the HTTP gateway
// and the service broker.
package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	jobmetrics "github.com/odyssey-cms/odyssey-cms/internal/jobs"
)

// Metrics gathers the application's Prometheus collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	provisions      *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cms_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_broker_calls_total",
		Help: "Broker action calls by service, action and outcome.",
	}, []string{"service", "action", "status"})
	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cms_broker_call_duration_seconds",
		Help:    "Broker action call duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "action"})
	provisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_router_provisions_total",
		Help: "Collections provisioned on demand by the action router.",
	}, []string{"collection", "status"})
	registry.MustRegister(requests, duration, calls, callDuration, provisions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		callsTotal:      calls,
		callDuration:    callDuration,
		provisions:      provisions,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveCall implements broker.Observer.
func (m *Metrics) ObserveCall(service, action string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(service, action, callStatus(err)).Inc()
	m.callDuration.WithLabelValues(service, action).Observe(elapsed.Seconds())
}

// ObserveProvision records an on-demand collection load.
func (m *Metrics) ObserveProvision(collection string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.provisions.WithLabelValues(collection, status).Inc()
}

// Jobs returns the background job collectors registered on this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func callStatus(err error) string {
	var missing *broker.ServiceNotFoundError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &missing):
		return "not_found"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

var _ broker.Observer = (*Metrics)(nil)
