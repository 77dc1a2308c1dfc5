package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	switch c.Engine.Kind {
	case EngineNative:
		if strings.TrimSpace(c.Engine.FFmpegBinary) == "" {
			return errors.New("engine.ffmpeg_binary must be set when engine.kind is native")
		}
	case EngineWasm:
		if strings.TrimSpace(c.Engine.WasmModule) == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/ffexec/config.toml"
			}
			return fmt.Errorf("engine.wasm_module is required when engine.kind is wasm. Set FFEXEC_WASM_MODULE or edit %s (create with 'ffexec config init')", defaultPath)
		}
	default:
		return fmt.Errorf("engine.kind: unsupported value %q (want %q or %q)", c.Engine.Kind, EngineNative, EngineWasm)
	}
	if err := ensurePositiveMap(map[string]int{
		"engine.load_timeout": c.Engine.LoadTimeout,
	}); err != nil {
		return err
	}
	if c.Engine.ExecTimeout < 0 {
		return errors.New("engine.exec_timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.MaxInputMiB <= 0 {
		return errors.New("api.max_input_mib must be positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := strings.TrimSpace(c.Notifications.NtfyTopic)
	if topic != "" && !isHTTPURL(topic) {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", topic)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
