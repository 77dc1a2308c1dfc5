package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"ffexec/internal/ids"
	"ffexec/internal/logging"
	"ffexec/internal/preflight"
)

const (
	workspacePrefix = "ws-"
	pendingPrefix   = "wsnew-"
	lockFileName    = ".lock"
	// Pending directories younger than this may belong to a process that is
	// between mkdir and lock.
	pendingGrace = time.Minute
)

// Workspace is an engine's private artifact directory under the scratch root.
// The directory holds a flock for as long as the workspace is open, which is
// how OpenWorkspace tells live workspaces from ones left by dead processes.
type Workspace struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger
}

// OpenWorkspace reclaims stale workspaces under scratch and creates a new
// locked one.
func OpenWorkspace(scratch string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	scratch = strings.TrimSpace(scratch)
	if scratch == "" {
		return nil, errors.New("scratch directory not configured")
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	if check := preflight.CheckDirectoryAccess("scratch directory", scratch); !check.Passed {
		return nil, fmt.Errorf("scratch directory unusable: %s", check.Detail)
	}

	reclaimStale(scratch, logger)

	// The directory is locked under a pending name and only then renamed into
	// the ws- namespace, so reclaimStale never sees an unlocked live workspace.
	id := ids.New("")
	pending := filepath.Join(scratch, pendingPrefix+id)
	if err := os.Mkdir(pending, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	lock := flock.New(filepath.Join(pending, lockFileName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		_ = os.RemoveAll(pending)
		if err == nil {
			err = errors.New("lock held by another process")
		}
		return nil, fmt.Errorf("lock workspace: %w", err)
	}
	dir := filepath.Join(scratch, workspacePrefix+id)
	if err := os.Rename(pending, dir); err != nil {
		_ = lock.Unlock()
		_ = os.RemoveAll(pending)
		return nil, fmt.Errorf("publish workspace: %w", err)
	}
	return &Workspace{dir: dir, lock: lock, logger: logger}, nil
}

func reclaimStale(scratch string, logger *slog.Logger) {
	live, err := filepath.Glob(filepath.Join(scratch, workspacePrefix+"*"))
	if err != nil {
		logger.Warn("scan scratch directory", logging.Error(err))
		return
	}
	pending, err := filepath.Glob(filepath.Join(scratch, pendingPrefix+"*"))
	if err != nil {
		logger.Warn("scan scratch directory", logging.Error(err))
		return
	}
	cutoff := time.Now().Add(-pendingGrace)
	for _, dir := range pending {
		if info, err := os.Stat(dir); err == nil && info.IsDir() && info.ModTime().Before(cutoff) {
			live = append(live, dir)
		}
	}
	for _, dir := range live {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		lock := flock.New(filepath.Join(dir, lockFileName))
		locked, err := lock.TryLock()
		if err != nil || !locked {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("reclaim stale workspace",
				logging.String("workspace", dir),
				logging.Error(err),
			)
		} else {
			logger.Info("reclaimed stale workspace", logging.String("workspace", dir))
		}
		_ = lock.Unlock()
	}
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// Path resolves an artifact name inside the workspace.
func (w *Workspace) Path(name string) (string, error) {
	if w == nil || w.dir == "" {
		return "", ErrNotLoaded
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(w.dir, name), nil
}

func (w *Workspace) WriteFile(name string, data []byte) error {
	path, err := w.Path(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (w *Workspace) ReadFile(name string) ([]byte, error) {
	path, err := w.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// DeleteFile removes an artifact. Removing one that was never created succeeds.
func (w *Workspace) DeleteFile(name string) error {
	path, err := w.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// artifacts lists the names stored in the workspace.
func (w *Workspace) artifacts() ([]string, error) {
	if w == nil || w.dir == "" {
		return nil, ErrNotLoaded
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("list workspace: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() == lockFileName {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Close removes the directory and releases the lock. It is safe to call twice.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	if left, err := w.artifacts(); err == nil && len(left) > 0 && w.logger != nil {
		w.logger.Warn("workspace closed with artifacts still present",
			logging.String("workspace", w.dir),
			logging.Int("count", len(left)),
			logging.String("artifacts", strings.Join(left, ",")),
		)
	}
	dir := w.dir
	w.dir = ""

	var errs []error
	if err := os.RemoveAll(dir); err != nil {
		errs = append(errs, fmt.Errorf("remove workspace: %w", err))
	}
	if w.lock != nil {
		if err := w.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release workspace lock: %w", err))
		}
		w.lock = nil
	}
	return errors.Join(errs...)
}
