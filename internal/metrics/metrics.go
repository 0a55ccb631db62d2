// Package metrics exposes Prometheus collectors for the QA service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Divas-Gupta30/kgqa/internal/qa"
)

const namespace = "kgqa"

// Metrics records HTTP traffic, QA runs and cache lookups.
// It satisfies qa.Recorder and storage.CacheObserver.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	runAttempts     prometheus.Histogram
	stageFailures   *prometheus.CounterVec
	cacheHitsTotal  prometheus.Counter
	cacheMissTotal  prometheus.Counter
}

// New registers every collector on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
			},
			[]string{"method", "endpoint"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of answered questions by final verdict",
			},
			[]string{"verdict"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a full question answering run",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
		),
		runAttempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_generation_attempts",
				Help:      "Answer generation attempts per run",
				Buckets:   []float64{1, 2, 3},
			},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of absorbed stage failures",
			},
			[]string{"stage"},
		),
		cacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of search cache hits",
			},
		),
		cacheMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of search cache misses",
			},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.requestDuration,
		m.runsTotal,
		m.runDuration,
		m.runAttempts,
		m.stageFailures,
		m.cacheHitsTotal,
		m.cacheMissTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(method, endpoint string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, endpoint, statusClass(status)).Inc()
	m.requestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

func (m *Metrics) StageFailed(stage qa.Stage) {
	m.stageFailures.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) RunFinished(res qa.Result, d time.Duration) {
	verdict := res.Verdict
	if verdict == "" {
		verdict = "none"
	}
	m.runsTotal.WithLabelValues(verdict).Inc()
	m.runDuration.Observe(d.Seconds())
	m.runAttempts.Observe(float64(res.Attempts))
}

func (m *Metrics) CacheHit()  { m.cacheHitsTotal.Inc() }
func (m *Metrics) CacheMiss() { m.cacheMissTotal.Inc() }

func statusClass(status int) string {
	if status >= http.StatusBadRequest {
		return "error"
	}
	return "success"
}
