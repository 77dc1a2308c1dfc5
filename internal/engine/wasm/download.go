package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ffexec/internal/config"
	"ffexec/internal/fileutil"
	"ffexec/internal/logging"
)

const downloadTimeout = 10 * time.Minute

// Downloader resolves a module reference to a local file, fetching remote
// modules once into the cache directory.
type Downloader struct {
	cacheDir string
	client   *http.Client
	logger   *slog.Logger
}

// NewDownloader returns a Downloader caching into cacheDir.
func NewDownloader(cacheDir string, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Downloader{
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: downloadTimeout},
		logger:   logger,
	}
}

// CachePath returns where a remote module is stored.
func (d *Downloader) CachePath(url string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(url)))
	return filepath.Join(d.cacheDir, hex.EncodeToString(sum[:])+".wasm")
}

// Fetch returns a local path for ref. Local references are returned as-is
// after a stat; remote ones are downloaded unless already cached.
func (d *Downloader) Fetch(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("wasm module not configured")
	}
	if !config.IsRemoteModule(ref) {
		if _, err := os.Stat(ref); err != nil {
			return "", fmt.Errorf("wasm module: %w", err)
		}
		return ref, nil
	}

	if d.cacheDir == "" {
		return "", fmt.Errorf("wasm cache directory not configured for remote module %s", ref)
	}
	target := d.CachePath(ref)
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		return target, nil
	}
	if err := os.MkdirAll(d.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create wasm cache directory: %w", err)
	}

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("build module request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download wasm module: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download wasm module: unexpected status %d", resp.StatusCode)
	}

	written, err := fileutil.WriteAtomic(target, resp.Body, 0o644, false)
	if errors.Is(err, fileutil.ErrEmpty) {
		return "", fmt.Errorf("download wasm module: empty body")
	}
	if err != nil {
		return "", fmt.Errorf("install wasm module: %w", err)
	}

	d.logger.Info("downloaded wasm module",
		logging.String("url", ref),
		logging.Int64("bytes", written),
		logging.Duration("elapsed", time.Since(started)),
	)
	return target, nil
}
