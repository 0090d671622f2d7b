// Package metrics exposes Prometheus collectors for generation, export and
// HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"

	"adspack/internal/orchestrator"
	"adspack/internal/providers"
)

const namespace = "adspack"

// Metrics holds all application collectors.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	GenerationsTotal  *prometheus.CounterVec
	FormatsTotal      *prometheus.CounterVec
	FormatDuration    *prometheus.HistogramVec
	ProviderRetries   *prometheus.CounterVec
	BreakerOpen       *prometheus.GaugeVec
	EncodesTotal      *prometheus.CounterVec
	ExportsTotal      *prometheus.CounterVec
	SessionsCreated   prometheus.Counter
	SessionsExpired   prometheus.Counter
	HistoryWriteFails prometheus.Counter
}

// New registers every collector, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"method", "route"},
		),

		GenerationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "requests_total",
				Help:      "Fan-out generations by quality and outcome (complete, partial, empty)",
			},
			[]string{"quality", "outcome"},
		),
		FormatsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "formats_total",
				Help:      "Per-format generation results",
			},
			[]string{"provider", "format", "status"},
		),
		FormatDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "generation",
				Name:      "format_duration_seconds",
				Help:      "Per-format generation latency including retries",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider"},
		),
		ProviderRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "retries_total",
				Help:      "Retries after transient provider errors",
			},
			[]string{"provider"},
		),
		BreakerOpen: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "breaker_open",
				Help:      "Circuit breaker state (0=closed, 0.5=half-open, 1=open)",
			},
			[]string{"provider"},
		),
		EncodesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "export",
				Name:      "encodes_total",
				Help:      "Image re-encodes by container and status",
			},
			[]string{"container", "status"},
		),
		ExportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "export",
				Name:      "downloads_total",
				Help:      "Export downloads by kind (single, archive) and container",
			},
			[]string{"kind", "container"},
		),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Result sessions created",
		}),
		SessionsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "expired_total",
			Help:      "Result sessions that reached expiry",
		}),
		HistoryWriteFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "write_failures_total",
			Help:      "History appends that failed",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveOutcome records a single format result. It matches
// orchestrator.Options.OnOutcome.
func (m *Metrics) ObserveOutcome(o orchestrator.Outcome) {
	status := "ok"
	if o.Err != nil {
		status = providers.KindOf(o.Err).String()
	}
	m.FormatsTotal.WithLabelValues(o.Provider, o.Format.String(), status).Inc()
	m.FormatDuration.WithLabelValues(o.Provider).Observe(o.Duration.Seconds())
}

// RecordGeneration classifies a finished fan-out.
func (m *Metrics) RecordGeneration(res orchestrator.Result) {
	outcome := "partial"
	switch len(res.Images) {
	case 0:
		outcome = "empty"
	case len(res.Requested):
		outcome = "complete"
	}
	m.GenerationsTotal.WithLabelValues(string(res.Quality), outcome).Inc()
}

func (m *Metrics) RecordRetry(provider string) {
	m.ProviderRetries.WithLabelValues(provider).Inc()
}

// SetBreakerState matches providers.BreakerSettings.OnStateChange.
func (m *Metrics) SetBreakerState(provider string, _, to gobreaker.State) {
	v := 0.0
	switch to {
	case gobreaker.StateOpen:
		v = 1
	case gobreaker.StateHalfOpen:
		v = 0.5
	}
	m.BreakerOpen.WithLabelValues(provider).Set(v)
}

// RecordEncode records a re-encode attempt into container.
func (m *Metrics) RecordEncode(container string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EncodesTotal.WithLabelValues(container, status).Inc()
}

func (m *Metrics) RecordExport(kind, container string) {
	m.ExportsTotal.WithLabelValues(kind, container).Inc()
}
