// Package telemetry exposes prometheus metrics on a private registry. A nil
// or Noop Metrics records nothing.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "content"

type Counter interface {
	Inc()
	Add(float64)
}

type Histogram interface {
	Observe(float64)
}

// CounterVec and HistogramVec resolve a labelled child
type CounterVec interface {
	With(labels ...string) Counter
}

type HistogramVec interface {
	With(labels ...string) Histogram
}

type NoopStat struct{}

func (NoopStat) Inc()            {}
func (NoopStat) Add(float64)     {}
func (NoopStat) Observe(float64) {}

type noopCounterVec struct{}
type noopHistogramVec struct{}

func (noopCounterVec) With(...string) Counter     { return NoopStat{} }
func (noopHistogramVec) With(...string) Histogram { return NoopStat{} }

type prometheusCounterVec struct{ vec *prometheus.CounterVec }

func (p prometheusCounterVec) With(labelValues ...string) Counter {
	return p.vec.WithLabelValues(labelValues...)
}

type prometheusHistogramVec struct{ vec *prometheus.HistogramVec }

func (p prometheusHistogramVec) With(labelValues ...string) Histogram {
	return p.vec.WithLabelValues(labelValues...)
}

// Metrics holds every instrument the service records
type Metrics struct {
	registry *prometheus.Registry

	DraftWrites     CounterVec // op, outcome
	ReadFallbacks   CounterVec // op
	IndexContention Counter

	MaterializeRuns      CounterVec // outcome
	MaterializeProcessed Counter
	MaterializeDeleted   Counter
	MaterializeErrors    Counter
	MaterializeDuration  Histogram

	DeployHookCalls CounterVec // outcome
	SchedulerChecks CounterVec // outcome

	HTTPRequests CounterVec   // method, route, status
	HTTPDuration HistogramVec // method, route
}

// New registers all metrics on a fresh registry that also carries the Go
// runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	counter := func(subsystem, name, help string) Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help})
		reg.MustRegister(c)
		return c
	}
	counterVec := func(subsystem, name, help string, labels ...string) CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
		reg.MustRegister(c)
		return prometheusCounterVec{vec: c}
	}

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "materialize",
		Name:      "duration_seconds",
		Help:      "Wall time of a materialization run.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	reg.MustRegister(duration)

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	reg.MustRegister(httpDuration)

	return &Metrics{
		registry: reg,

		DraftWrites:     counterVec("drafts", "writes_total", "Draft mutations by operation and outcome.", "op", "outcome"),
		ReadFallbacks:   counterVec("", "read_fallbacks_total", "Reads answered with an empty result because the backend was unavailable.", "op"),
		IndexContention: counter("index", "contention_total", "Slug index updates that exhausted their compare-and-swap attempts."),

		MaterializeRuns:      counterVec("materialize", "runs_total", "Materialization runs by outcome.", "outcome"),
		MaterializeProcessed: counter("materialize", "processed_total", "Drafts written to the static tier."),
		MaterializeDeleted:   counter("materialize", "deleted_total", "Static files removed by deletion markers."),
		MaterializeErrors:    counter("materialize", "item_errors_total", "Per-item materialization failures."),
		MaterializeDuration:  duration,

		DeployHookCalls: counterVec("deploy", "hook_calls_total", "Deploy hook invocations by outcome.", "outcome"),
		SchedulerChecks: counterVec("scheduler", "checks_total", "Nightly build checks by outcome.", "outcome"),

		HTTPRequests: counterVec("http", "requests_total", "HTTP requests by method, route and status.", "method", "route", "status"),
		HTTPDuration: prometheusHistogramVec{vec: httpDuration},
	}
}

// Noop returns metrics that record nothing
func Noop() *Metrics {
	return &Metrics{
		DraftWrites:          noopCounterVec{},
		ReadFallbacks:        noopCounterVec{},
		IndexContention:      NoopStat{},
		MaterializeRuns:      noopCounterVec{},
		MaterializeProcessed: NoopStat{},
		MaterializeDeleted:   NoopStat{},
		MaterializeErrors:    NoopStat{},
		MaterializeDuration:  NoopStat{},
		DeployHookCalls:      noopCounterVec{},
		SchedulerChecks:      noopCounterVec{},
		HTTPRequests:         noopCounterVec{},
		HTTPDuration:         noopHistogramVec{},
	}
}

// OrNoop lets callers accept a nil *Metrics
func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return Noop()
	}
	return m
}

// Registry returns the underlying registry, nil for Noop metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
