package config

const (
	defaultScratchDir     = "~/.cache/ffexec/scratch"
	defaultLogDir         = "~/.local/share/ffexec/logs"
	defaultAPIBind        = "127.0.0.1:7571"
	defaultEngineKind     = EngineNative
	defaultFFmpegBinary   = "ffmpeg"
	defaultWasmCacheDir   = "~/.cache/ffexec/wasm"
	defaultLoadTimeout    = 120
	defaultExecTimeout    = 0
	defaultRetentionDays  = 30
	defaultMaxInputMiB    = 512
	defaultNotifyTimeout  = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultHistoryEnabled = true
)

// Engine kinds accepted by engine.kind.
const (
	EngineNative = "native"
	EngineWasm   = "wasm"
)

func defaultGlobalArgs() []string {
	return []string{"-hide_banner", "-nostdin"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Engine: Engine{
			Kind:         defaultEngineKind,
			FFmpegBinary: defaultFFmpegBinary,
			GlobalArgs:   defaultGlobalArgs(),
			WasmCacheDir: defaultWasmCacheDir,
			LoadTimeout:  defaultLoadTimeout,
			ExecTimeout:  defaultExecTimeout,
		},
		History: History{
			Enabled:       defaultHistoryEnabled,
			RetentionDays: defaultRetentionDays,
		},
		API: API{
			CORSOrigins: []string{"*"},
			MaxInputMiB: defaultMaxInputMiB,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
