// Package metrics exposes Prometheus collectors for the transcode adapter,
// the engine lifecycle, and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "ffexec"
	unmatched = "unmatched"

	// OutcomeOK labels transcodes and engine initializations that succeeded.
	OutcomeOK = "ok"
	// OutcomeError labels failed engine initializations.
	OutcomeError = "error"
)

// Metrics holds every collector ffexec registers.
type Metrics struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	transcodeDuration *prometheus.HistogramVec
	transcodesTotal   *prometheus.CounterVec
	cleanupFailures   *prometheus.CounterVec
	engineInits       *prometheus.CounterVec
	engineInitSeconds prometheus.Histogram

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg. gatherer backs Handler.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		registerer: reg,
		gatherer:   gatherer,
		transcodeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transcode_duration_seconds",
				Help:      "Time from queue start to result for each transcode.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		transcodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcodes_total",
				Help:      "Completed transcodes by outcome kind.",
			},
			[]string{"outcome"},
		),
		cleanupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "artifact_cleanup_failures_total",
				Help:      "Artifacts that could not be deleted after a transcode.",
			},
			[]string{"role"},
		),
		engineInits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_initializations_total",
				Help:      "Engine initialization attempts by outcome.",
			},
			[]string{"outcome"},
		),
		engineInitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "engine_initialization_seconds",
				Help:      "Engine initialization duration in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.transcodeDuration,
		m.transcodesTotal,
		m.cleanupFailures,
		m.engineInits,
		m.engineInitSeconds,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

// TrackQueue registers gauges sampled from the adapter on every scrape.
func (m *Metrics) TrackQueue(pending func() int, busy func() bool) {
	m.registerer.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Transcodes waiting for the engine.",
		}, func() float64 { return float64(pending()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_busy",
			Help:      "1 while a transcode holds the engine.",
		}, func() float64 {
			if busy() {
				return 1
			}
			return 0
		}),
	)
}

// ObserveTranscode records one finished transcode. An empty kind is success.
func (m *Metrics) ObserveTranscode(kind string, elapsed time.Duration) {
	if kind == "" {
		kind = OutcomeOK
	}
	m.transcodesTotal.WithLabelValues(kind).Inc()
	m.transcodeDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// CleanupFailed counts an artifact that could not be removed.
func (m *Metrics) CleanupFailed(role string) {
	m.cleanupFailures.WithLabelValues(role).Inc()
}

// EngineInitialized has the engine.InitObserver signature.
func (m *Metrics) EngineInitialized(err error, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.engineInits.WithLabelValues(outcome).Inc()
	m.engineInitSeconds.Observe(elapsed.Seconds())
}

// Middleware records request count and duration using the chi route pattern
// rather than the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
