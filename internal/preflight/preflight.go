package preflight

import (
	"context"

	"ffexec/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	switch cfg.Engine.Kind {
	case config.EngineNative:
		for _, status := range CheckSystemDeps(cfg) {
			detail := status.Command
			if !status.Available {
				detail = status.Detail
			}
			results = append(results, Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: detail})
		}
	case config.EngineWasm:
		results = append(results, CheckDirectoryAccess("WASM cache directory", cfg.Engine.WasmCacheDir))
		results = append(results, CheckWasmModule(ctx, cfg.Engine.WasmModule, cfg.Engine.WasmCacheDir))
	}

	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
