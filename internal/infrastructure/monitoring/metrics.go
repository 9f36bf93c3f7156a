package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "miniapp_host"

// Metrics holds all Prometheus metrics of the host.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Runtime metrics
	SchemeRequests *prometheus.CounterVec
	SchemeDuration prometheus.Histogram
	BridgeCommands *prometheus.CounterVec
	Prompts        *prometheus.CounterVec

	// Lifecycle metrics
	Installs        *prometheus.CounterVec
	InstallDuration prometheus.Histogram
	SessionsActive  prometheus.Gauge
	WSMessages      *prometheus.CounterVec

	snapshot Snapshot
	mu       sync.Mutex
}

// Snapshot holds running totals for the JSON status endpoint.
type Snapshot struct {
	HTTPRequests   int64 `json:"httpRequests"`
	HTTPErrors     int64 `json:"httpErrors"`
	SchemeHits     int64 `json:"schemeHits"`
	SchemeMisses   int64 `json:"schemeMisses"`
	BridgeCommands int64 `json:"bridgeCommands"`
	BridgeErrors   int64 `json:"bridgeErrors"`
	ActiveSessions int64 `json:"activeSessions"`
}

// NewMetrics registers the host metrics on a fresh registry together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewMetricsWithRegistry(reg)
}

// NewMetricsWithRegistry registers the host metrics on reg.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),

		SchemeRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheme_requests_total",
				Help:      "Custom scheme requests by outcome",
			},
			[]string{"outcome"},
		),
		SchemeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scheme_request_duration_seconds",
				Help:      "Time to resolve and read a custom scheme request",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
			},
		),
		BridgeCommands: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_commands_total",
				Help:      "Bridge commands by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		Prompts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_prompts_total",
				Help:      "Permission prompts by kind and decision",
			},
			[]string{"kind", "decision"},
		),

		Installs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "installs_total",
				Help:      "Mini-app installs by outcome",
			},
			[]string{"outcome"},
		),
		InstallDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "install_duration_seconds",
				Help:      "Duration of mini-app downloads",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of open renderer sessions",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Renderer socket messages by direction and type",
			},
			[]string{"direction", "type"},
		),
	}
}

// WatchBreaker exports a breaker state as a gauge: 0 closed, 1 half-open,
// 2 open.
func (m *Metrics) WatchBreaker(name string, state func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "breaker_state",
			Help:        "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			ConstLabels: prometheus.Labels{"breaker": name},
		},
		func() float64 { return float64(state()) },
	))
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.HTTPRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.HTTPErrors++
	}
	m.mu.Unlock()
}

// RecordSchemeRequest records one custom scheme request.
func (m *Metrics) RecordSchemeRequest(outcome string, duration time.Duration) {
	m.SchemeRequests.WithLabelValues(outcome).Inc()
	m.SchemeDuration.Observe(duration.Seconds())

	m.mu.Lock()
	if outcome == "hit" {
		m.snapshot.SchemeHits++
	} else {
		m.snapshot.SchemeMisses++
	}
	m.mu.Unlock()
}

// RecordBridgeCommand records one completed bridge message.
func (m *Metrics) RecordBridgeCommand(action, outcome string) {
	m.BridgeCommands.WithLabelValues(action, outcome).Inc()

	m.mu.Lock()
	m.snapshot.BridgeCommands++
	if outcome != "success" {
		m.snapshot.BridgeErrors++
	}
	m.mu.Unlock()
}

// RecordPrompt records one permission prompt.
func (m *Metrics) RecordPrompt(kind, decision string) {
	m.Prompts.WithLabelValues(kind, decision).Inc()
}

// RecordInstall records one install attempt.
func (m *Metrics) RecordInstall(outcome string, duration time.Duration) {
	m.Installs.WithLabelValues(outcome).Inc()
	m.InstallDuration.Observe(duration.Seconds())
}

// RecordWSMessage records a renderer socket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncSessions increments the open session gauge.
func (m *Metrics) IncSessions() {
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// DecSessions decrements the open session gauge.
func (m *Metrics) DecSessions() {
	m.SessionsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// Snapshot returns a copy of the running totals.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}
