package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg), reg
}

func TestObserveTranscodeLabelsSuccessAsOK(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveTranscode("", 2*time.Second)
	m.ObserveTranscode("execution", time.Second)
	m.ObserveTranscode("execution", time.Second)

	if got := testutil.ToFloat64(m.transcodesTotal.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("expected 1 ok transcode, got %v", got)
	}
	if got := testutil.ToFloat64(m.transcodesTotal.WithLabelValues("execution")); got != 2 {
		t.Fatalf("expected 2 execution failures, got %v", got)
	}
	if n := testutil.CollectAndCount(m.transcodeDuration); n != 2 {
		t.Fatalf("expected 2 duration series, got %d", n)
	}
}

func TestCleanupAndEngineCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.CleanupFailed("input")
	m.EngineInitialized(errors.New("boom"), time.Millisecond)
	m.EngineInitialized(nil, time.Millisecond)
	m.EngineInitialized(nil, time.Millisecond)

	if got := testutil.ToFloat64(m.cleanupFailures.WithLabelValues("input")); got != 1 {
		t.Fatalf("expected 1 cleanup failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.engineInits.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("expected 1 failed init, got %v", got)
	}
	if got := testutil.ToFloat64(m.engineInits.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 successful inits, got %v", got)
	}
}

func TestTrackQueueSamplesOnScrape(t *testing.T) {
	m, reg := newTestMetrics(t)

	pending := 3
	m.TrackQueue(func() int { return pending }, func() bool { return true })

	expected := `
# HELP ffexec_queue_pending Transcodes waiting for the engine.
# TYPE ffexec_queue_pending gauge
ffexec_queue_pending 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "ffexec_queue_pending"); err != nil {
		t.Fatal(err)
	}

	pending = 0
	expected = `
# HELP ffexec_queue_pending Transcodes waiting for the engine.
# TYPE ffexec_queue_pending gauge
ffexec_queue_pending 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "ffexec_queue_pending"); err != nil {
		t.Fatal(err)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+id, nil))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/v1/jobs/{id}", "404")); got != 2 {
		t.Fatalf("expected 2 requests on the route pattern, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", unmatched, "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.CleanupFailed("output")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `ffexec_artifact_cleanup_failures_total{role="output"} 1`) {
		t.Fatalf("metrics output missing cleanup counter:\n%s", body)
	}
}

func TestNewIncludesRuntimeCollectors(t *testing.T) {
	m := New()
	families, err := m.gatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() == "go_goroutines" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected go runtime collector")
	}
}
