package native_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ffexec/internal/engine"
	"ffexec/internal/engine/native"
	"ffexec/internal/testsupport"
)

func loadEngine(t *testing.T) (*native.Engine, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	factory := native.Factory(cfg, nil)
	eng, err := factory(context.Background())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	n := eng.(*native.Engine)
	if err := n.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n, cfg.Paths.ScratchDir
}

func TestNativeEngineRoundTrip(t *testing.T) {
	eng, _ := loadEngine(t)
	ctx := context.Background()

	if err := eng.WriteFile(ctx, "in_a", []byte("payload")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := eng.Exec(ctx, []string{"-i", "in_a", "-f", "mp3", "out_a.mp3"}); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	contents, err := eng.ReadFile(ctx, "out_a.mp3")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data, ok := contents.(engine.Binary)
	if !ok {
		t.Fatalf("expected binary contents, got %T", contents)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected output %q", data)
	}

	for _, name := range []string{"in_a", "out_a.mp3", "never_created"} {
		if err := eng.DeleteFile(ctx, name); err != nil {
			t.Fatalf("DeleteFile(%s): %v", name, err)
		}
	}
	entries, err := os.ReadDir(eng.Workspace())
	if err != nil {
		t.Fatalf("read workspace: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != ".lock" {
			t.Fatalf("unexpected leftover artifact %s", entry.Name())
		}
	}
}

func TestNativeEngineExecFailureCarriesStderr(t *testing.T) {
	eng, _ := loadEngine(t)
	t.Setenv("FFEXEC_STUB_FAIL", "1")

	err := eng.Exec(context.Background(), []string{"-i", "missing", "out"})
	var execErr *engine.ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if execErr.ExitCode != 1 {
		t.Fatalf("unexpected exit code %d", execErr.ExitCode)
	}
	if execErr.Stderr != "Invalid data found when processing input" {
		t.Fatalf("unexpected stderr %q", execErr.Stderr)
	}
}

func TestNativeEngineRejectsEscapingNames(t *testing.T) {
	eng, _ := loadEngine(t)
	err := eng.WriteFile(context.Background(), "../escape", []byte("x"))
	if !errors.Is(err, engine.ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestNativeEngineReclaimsStaleWorkspaces(t *testing.T) {
	first, scratch := loadEngine(t)

	stale := filepath.Join(scratch, "ws-deadbeef")
	if err := os.MkdirAll(stale, 0o700); err != nil {
		t.Fatalf("mkdir stale: %v", err)
	}
	if err := os.WriteFile(filepath.Join(stale, "in_leftover"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write leftover: %v", err)
	}

	second := native.New(native.Options{Binary: "ffmpeg", ScratchDir: scratch})
	if err := second.Load(context.Background()); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	defer second.Close()

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale workspace removed, stat err=%v", err)
	}
	if _, err := os.Stat(first.Workspace()); err != nil {
		t.Fatalf("live workspace must survive reclaim: %v", err)
	}
	if first.Workspace() == second.Workspace() {
		t.Fatal("engines must not share a workspace")
	}
}

func TestNativeEngineCloseRemovesWorkspace(t *testing.T) {
	eng, _ := loadEngine(t)
	workspace := eng.Workspace()
	if err := eng.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(workspace); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}
	if err := eng.WriteFile(context.Background(), "in_x", nil); !errors.Is(err, engine.ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded after close, got %v", err)
	}
}

func TestNativeEngineLoadFailsWithoutBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	eng := native.New(native.Options{ScratchDir: t.TempDir()})
	if err := eng.Load(context.Background()); err == nil {
		t.Fatal("expected load failure without ffmpeg")
	}
}
