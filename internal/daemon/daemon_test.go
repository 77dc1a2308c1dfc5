package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"ffexec/internal/config"
	"ffexec/internal/daemon"
	"ffexec/internal/engine"
	"ffexec/internal/history"
	"ffexec/internal/logging"
	"ffexec/internal/testsupport"
	"ffexec/internal/transcode"
)

func newDaemon(t *testing.T, cfg *config.Config, fake *testsupport.FakeEngine) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop(),
		daemon.WithEngineFactory(func(context.Context) (engine.Engine, error) { return fake, nil }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, testsupport.NewFakeEngine())
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() || status.HistoryPath != cfg.HistoryPath() {
		t.Fatalf("unexpected paths: %+v", status)
	}
	if status.EngineState != engine.StateIdle {
		t.Fatalf("engine should load lazily, got %s", status.EngineState)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, testsupport.NewFakeEngine())
	second := newDaemon(t, cfg, testsupport.NewFakeEngine())
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected lock contention error")
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestStartFailsInterruptedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)
	if err := store.Queued(context.Background(), transcode.Job{ID: "left-behind"}); err != nil {
		t.Fatalf("Queued: %v", err)
	}

	d := newDaemon(t, cfg, testsupport.NewFakeEngine())
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job, err := d.History().Get(context.Background(), "left-behind")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != history.StatusFailed || job.ErrorMessage != history.InterruptedMessage {
		t.Fatalf("unexpected job after start: %+v", job)
	}
}

func TestAdapterRecordsIntoHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	fake := testsupport.NewFakeEngine()
	d := newDaemon(t, cfg, fake)
	ctx := context.Background()

	res, err := d.Adapter().Transcode(ctx, []string{"FFMPEG", "-i", "INPUT", "OUTPUT"}, []byte("abc"), "mkv")
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if string(res.Output) != "abc" {
		t.Fatalf("unexpected output %q", res.Output)
	}

	status := d.Status(ctx)
	if status.EngineState != engine.StateReady {
		t.Fatalf("expected ready engine, got %s", status.EngineState)
	}
	if status.JobCounts[history.StatusSucceeded] != 1 {
		t.Fatalf("unexpected job counts: %v", status.JobCounts)
	}

	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fake.Closed() {
		t.Fatal("expected engine to be closed")
	}
}

func TestFailuresAreSentToNtfy(t *testing.T) {
	var mu sync.Mutex
	var titles []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		titles = append(titles, r.Header.Get("Title"))
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(srv.URL))
	fake := testsupport.NewFakeEngine()
	fake.LoadErr = errors.New("no codecs")
	d := newDaemon(t, cfg, fake)
	if d.Notifier() == nil {
		t.Fatal("expected notifier for configured topic")
	}
	ctx := context.Background()

	if _, err := d.Adapter().Transcode(ctx, []string{"-i", "INPUT", "OUTPUT"}, []byte("x"), ""); transcode.Kind(err) != transcode.KindInitialization {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]bool{"ffexec - Engine Unavailable": false, "ffexec - Transcode Failed": false}
	for _, title := range titles {
		want[title] = true
	}
	for title, seen := range want {
		if !seen {
			t.Fatalf("missing %q alert, got %v", title, titles)
		}
	}
}

func TestHistoryDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryDisabled())
	d := newDaemon(t, cfg, testsupport.NewFakeEngine())

	if d.History() != nil {
		t.Fatal("expected no history store")
	}
	if _, err := d.Adapter().Transcode(context.Background(), []string{"FFMPEG", "-i", "INPUT", "OUTPUT"}, []byte("x"), ""); err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if counts := d.Status(context.Background()).JobCounts; counts != nil {
		t.Fatalf("expected no counts, got %v", counts)
	}
}

func TestEngineFactorySelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.EngineFactory(cfg, logging.NewNop()); err != nil {
		t.Fatalf("native factory: %v", err)
	}
	cfg.Engine.Kind = config.EngineWasm
	if _, err := daemon.EngineFactory(cfg, logging.NewNop()); err != nil {
		t.Fatalf("wasm factory: %v", err)
	}
	cfg.Engine.Kind = "gpu"
	if _, err := daemon.EngineFactory(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
