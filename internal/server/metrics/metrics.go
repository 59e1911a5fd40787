// Package metrics owns the Prometheus registry of the drawer box server.
//
// All observation methods are safe on a nil *Metrics, so components built
// without metrics (tests, tools) need no special casing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caixa"

// Outcome label values.
const (
	CaptureOK       = "ok"
	CaptureNotOK    = "not_ok"
	CaptureFailed   = "failed"
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	captures        *prometheus.CounterVec
	captureDuration prometheus.Histogram
	selections      *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	taps            *prometheus.CounterVec
	httpRequests    *prometheus.HistogramVec
}

// New builds a registry with the process and Go collectors plus the
// drawer box series.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_commands_total",
			Help:      "Hardware commands published, by command kind and result.",
		}, []string{"kind", "ok"}),
		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Drawer captures, by outcome.",
		}, []string{"outcome"}),
		captureDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Camera grab plus analysis time.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Tool selections, by movement kind and outcome.",
		}, []string{"kind", "outcome"}),
		confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Drawer confirmations, by movement kind and outcome.",
		}, []string{"kind", "outcome"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session status changes, by target status.",
		}, []string{"status"}),
		taps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "card_taps_total",
			Help:      "Card reads, by authorization result.",
		}, []string{"authorized"}),
		httpRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route pattern and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Command(kind string, ok bool) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind, strconv.FormatBool(ok)).Inc()
}

func (m *Metrics) Capture(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(outcome).Inc()
	m.captureDuration.Observe(d.Seconds())
}

func (m *Metrics) Selection(kind, outcome string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Confirmation(kind, outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(kind, outcome).Inc()
}

// SessionTransition counts n sessions moved to status.
func (m *Metrics) SessionTransition(status string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessions.WithLabelValues(status).Add(float64(n))
}

func (m *Metrics) Tap(authorized bool) {
	if m == nil {
		return
	}
	m.taps.WithLabelValues(strconv.FormatBool(authorized)).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}
