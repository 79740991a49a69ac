// Package stats espone le metriche Prometheus di SmartWatcher: run,
// step, tool call, critiche, richieste HTTP e cache di ricerca.
package stats

import (
	"net/http"
	"strconv"
	"time"

	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/biodoia/smartwatcher/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics raccoglie le metriche su un registry dedicato
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runsInFlight   prometheus.Gauge
	runDuration    prometheus.Histogram
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	toolCallsTotal *prometheus.CounterVec
	critiquesTotal *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics crea le metriche con il namespace indicato
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "smartwatcher"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by outcome",
		},
		[]string{"status"},
	)

	m.runsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs currently executing",
		},
	)

	m.runDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	m.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of pipeline steps by persona and outcome",
		},
		[]string{"persona", "status"},
	)

	m.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_milliseconds",
			Help:      "Pipeline step duration in milliseconds",
			Buckets:   []float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 180000},
		},
		[]string{"persona"},
	)

	m.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls by tool and outcome",
		},
		[]string{"tool", "status"},
	)

	m.critiquesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "critiques_total",
			Help:      "Total number of pipeline critiques by outcome",
		},
		[]string{"status"},
	)

	m.httpRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "code"},
	)

	m.httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   []float64{5, 25, 100, 500, 1000, 5000, 30000, 120000},
		},
		[]string{"method", "route"},
	)

	return m
}

// Registry restituisce il registry Prometheus
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler restituisce l'handler HTTP per /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe aggiorna le metriche da un evento di pipeline; è un pipeline.Subscriber
func (m *Metrics) Observe(ev pipeline.Event) {
	switch ev.Type {
	case pipeline.EventRunStarted:
		m.runsInFlight.Inc()
	case pipeline.EventRunCompleted:
		m.runsInFlight.Dec()
		m.runsTotal.WithLabelValues("completed").Inc()
		m.runDuration.Observe(float64(ev.DurationMS) / 1000)
	case pipeline.EventRunFailed:
		m.runsInFlight.Dec()
		m.runsTotal.WithLabelValues("failed").Inc()
		m.runDuration.Observe(float64(ev.DurationMS) / 1000)
	case pipeline.EventStepCompleted:
		m.stepsTotal.WithLabelValues(ev.PersonaID, "completed").Inc()
		m.stepDuration.WithLabelValues(ev.PersonaID).Observe(float64(ev.DurationMS))
	case pipeline.EventStepFailed:
		m.stepsTotal.WithLabelValues(ev.PersonaID, "failed").Inc()
		m.stepDuration.WithLabelValues(ev.PersonaID).Observe(float64(ev.DurationMS))
	case pipeline.EventToolCall:
		status := "ok"
		if ev.Error != "" {
			status = "error"
		}
		m.toolCallsTotal.WithLabelValues(ev.Tool, status).Inc()
	}
}

// RecordRunRejected conta una run rifiutata prima dell'esecuzione (validazione, configurazione)
func (m *Metrics) RecordRunRejected() {
	m.runsTotal.WithLabelValues("rejected").Inc()
}

// RecordCritique conta una critica
func (m *Metrics) RecordCritique(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.critiquesTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest registra una richiesta HTTP
func (m *Metrics) RecordHTTPRequest(method, route string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(float64(d.Milliseconds()))
}

// RegisterCache espone le statistiche del cache di ricerca
func (m *Metrics) RegisterCache(namespace string, c cache.Cache) {
	if namespace == "" {
		namespace = "smartwatcher"
	}
	factory := promauto.With(m.registry)

	stat := func(pick func(cache.CacheStats) int64) func() float64 {
		return func() float64 { return float64(pick(c.Stats())) }
	}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "search_cache", Name: "hits_total",
		Help: "Search cache hits",
	}, stat(func(s cache.CacheStats) int64 { return s.Hits }))

	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "search_cache", Name: "misses_total",
		Help: "Search cache misses",
	}, stat(func(s cache.CacheStats) int64 { return s.Misses }))

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "search_cache", Name: "size_bytes",
		Help: "Approximate size of cached search results",
	}, stat(func(s cache.CacheStats) int64 { return s.Size }))
}
