package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionRestarts *prometheus.CounterVec
	SessionActive   prometheus.Gauge

	// Executor metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Translator metrics
	Translations *prometheus.CounterVec

	// Supervisor metrics
	Interrupts prometheus.Counter

	// Debug server metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates a new metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dwim_sessions_started_total",
				Help: "Total number of shell processes started",
			},
		),
		SessionRestarts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dwim_session_restarts_total",
				Help: "Total number of shell session restarts",
			},
			[]string{"reason"},
		),
		SessionActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dwim_session_active",
				Help: "1 while a shell process occupies the session slot",
			},
		),

		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dwim_requests_total",
				Help: "Total number of shell requests",
			},
			[]string{"kind", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dwim_request_duration_seconds",
				Help:    "Shell request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),

		Translations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dwim_translations_total",
				Help: "Total number of translation calls",
			},
			[]string{"status"},
		),

		Interrupts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dwim_interrupts_total",
				Help: "Total number of interrupts handled",
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dwim_debug_http_requests_total",
				Help: "Total number of debug server requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

// IncSessionsStarted records a spawned shell process
func (m *Metrics) IncSessionsStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionActive.Set(1)
}

// SetSessionInactive records that the session slot no longer holds a live process
func (m *Metrics) SetSessionInactive() {
	if m == nil {
		return
	}
	m.SessionActive.Set(0)
}

// RecordRestart records a session restart
func (m *Metrics) RecordRestart(reason string) {
	if m == nil {
		return
	}
	m.SessionRestarts.WithLabelValues(reason).Inc()
}

// RecordRequest records an executor request
func (m *Metrics) RecordRequest(kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(kind, outcome).Inc()
	m.RequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordTranslation records a translator call
func (m *Metrics) RecordTranslation(status string) {
	if m == nil {
		return
	}
	m.Translations.WithLabelValues(status).Inc()
}

// IncInterrupts records a handled interrupt
func (m *Metrics) IncInterrupts() {
	if m == nil {
		return
	}
	m.Interrupts.Inc()
}

// RecordHTTPRequest records a debug server request
func (m *Metrics) RecordHTTPRequest(method, path, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
}
