package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEngine(); err != nil {
		return err
	}
	if err := c.normalizeHistory(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeEngine() error {
	c.Engine.Kind = strings.ToLower(strings.TrimSpace(c.Engine.Kind))
	if c.Engine.Kind == "" {
		c.Engine.Kind = defaultEngineKind
	}

	if value, ok := os.LookupEnv("FFEXEC_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.Engine.FFmpegBinary = value
	}
	c.Engine.FFmpegBinary = strings.TrimSpace(c.Engine.FFmpegBinary)
	if c.Engine.FFmpegBinary == "" {
		c.Engine.FFmpegBinary = defaultFFmpegBinary
	}

	if c.Engine.GlobalArgs == nil {
		c.Engine.GlobalArgs = defaultGlobalArgs()
	}
	args := make([]string, 0, len(c.Engine.GlobalArgs))
	for _, arg := range c.Engine.GlobalArgs {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Engine.GlobalArgs = args

	if strings.TrimSpace(c.Engine.WasmModule) == "" {
		if value, ok := os.LookupEnv("FFEXEC_WASM_MODULE"); ok {
			c.Engine.WasmModule = value
		}
	}
	c.Engine.WasmModule = strings.TrimSpace(c.Engine.WasmModule)
	if c.Engine.WasmModule != "" && !IsRemoteModule(c.Engine.WasmModule) {
		expanded, err := expandPath(c.Engine.WasmModule)
		if err != nil {
			return fmt.Errorf("engine.wasm_module: %w", err)
		}
		c.Engine.WasmModule = expanded
	}

	var err error
	if strings.TrimSpace(c.Engine.WasmCacheDir) == "" {
		c.Engine.WasmCacheDir = defaultWasmCacheDir
	}
	if c.Engine.WasmCacheDir, err = expandPath(c.Engine.WasmCacheDir); err != nil {
		return fmt.Errorf("engine.wasm_cache_dir: %w", err)
	}

	if c.Engine.LoadTimeout <= 0 {
		c.Engine.LoadTimeout = defaultLoadTimeout
	}
	return nil
}

func (c *Config) normalizeHistory() error {
	c.History.Path = strings.TrimSpace(c.History.Path)
	if c.History.Path != "" {
		expanded, err := expandPath(c.History.Path)
		if err != nil {
			return fmt.Errorf("history.path: %w", err)
		}
		c.History.Path = expanded
	}
	if c.History.RetentionDays < 0 {
		c.History.RetentionDays = 0
	}
	return nil
}

func (c *Config) normalizeAPI() {
	origins := make([]string, 0, len(c.API.CORSOrigins))
	seen := make(map[string]struct{}, len(c.API.CORSOrigins))
	for _, origin := range c.API.CORSOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		origins = append(origins, trimmed)
	}
	c.API.CORSOrigins = origins
	if c.API.MaxInputMiB <= 0 {
		c.API.MaxInputMiB = defaultMaxInputMiB
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// IsRemoteModule reports whether a wasm module reference is an http(s) URL.
func IsRemoteModule(ref string) bool {
	return isHTTPURL(ref)
}

func isHTTPURL(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
