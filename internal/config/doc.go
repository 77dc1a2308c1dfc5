// Package config loads, normalizes, and validates ffexec configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FFEXEC_FFMPEG and FFEXEC_WASM_MODULE. The Config type centralizes every knob
// the CLI and the HTTP daemon need so the engine, job history, and API server
// are configured in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
