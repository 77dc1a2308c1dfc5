package daemon

import (
	"fmt"
	"log/slog"

	"ffexec/internal/config"
	"ffexec/internal/engine"
	"ffexec/internal/engine/native"
	"ffexec/internal/engine/wasm"
)

// EngineFactory selects the engine implementation named by engine.kind.
func EngineFactory(cfg *config.Config, logger *slog.Logger) (engine.Factory, error) {
	switch cfg.Engine.Kind {
	case config.EngineNative:
		return native.Factory(cfg, logger), nil
	case config.EngineWasm:
		return wasm.Factory(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", cfg.Engine.Kind)
	}
}
