// Package observability collects Prometheus metrics for the HTTP surface
// and the realtime hub.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the registry and the application's metric vectors.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	connections     prometheus.Gauge
	groupMembers    prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	relayOutcomes   *prometheus.CounterVec
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nova_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nova_realtime_connections",
		Help: "Live websocket connections on this node.",
	})
	groupMembers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nova_realtime_group_memberships",
		Help: "Total group memberships across live connections.",
	})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_realtime_events_published_total",
		Help: "Events published to broadcast groups, by event name.",
	}, []string{"event"})
	relays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nova_relay_requests_total",
		Help: "Cross-node relay calls by outcome.",
	}, []string{"outcome"})
	registry.MustRegister(requests, duration, connections, groupMembers, events, relays)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		connections:     connections,
		groupMembers:    groupMembers,
		eventsPublished: events,
		relayOutcomes:   relays,
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

// Middleware records metrics for each HTTP request.
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

// EventPublished implements realtime.PublishObserver.
func (m *Metrics) EventPublished(event string, _ int) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(event).Inc()
}

// ConnectionOpened tracks a new live connection.
func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

// ConnectionClosed tracks a closed connection.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// GroupJoined tracks one group membership.
func (m *Metrics) GroupJoined() {
	if m != nil {
		m.groupMembers.Inc()
	}
}

// GroupLeft tracks a dropped group membership.
func (m *Metrics) GroupLeft() {
	if m != nil {
		m.groupMembers.Dec()
	}
}

// RelayOutcome counts a cross-node relay call result ("ok", "rejected",
// "unreachable").
func (m *Metrics) RelayOutcome(outcome string) {
	if m != nil {
		m.relayOutcomes.WithLabelValues(outcome).Inc()
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
