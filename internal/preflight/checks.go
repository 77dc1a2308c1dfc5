package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"ffexec/internal/config"
	"ffexec/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckWasmModule verifies the wasm engine module source. Local modules must be
// readable files; remote modules must answer a HEAD request with 200.
func CheckWasmModule(ctx context.Context, ref, cacheDir string) Result {
	const name = "WASM module"

	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Result{Name: name, Detail: "not configured"}
	}

	if !config.IsRemoteModule(ref) {
		info, err := os.Stat(ref)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", ref, err)}
		}
		if info.IsDir() {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", ref)}
		}
		if err := unix.Access(ref, unix.R_OK); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", ref, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d bytes)", ref, info.Size())}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, ref, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status (%d)", resp.StatusCode)}
	}
	detail := "reachable"
	if cacheDir != "" {
		detail = fmt.Sprintf("reachable (cache %s)", cacheDir)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the binaries the configured engine needs. Both the
// daemon and the CLI status command use this so the requirement list lives in
// one place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	if cfg == nil || cfg.Engine.Kind != config.EngineNative {
		return nil
	}
	return deps.CheckBinaries([]deps.Requirement{
		deps.FFmpegRequirement(cfg.Engine.FFmpegBinary),
	})
}
