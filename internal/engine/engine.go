// Package engine defines the contract between the transcode adapter and a
// media engine, plus Lazy, which builds the single shared engine on first use.
//
// An engine owns private storage holding named artifacts. It is not reentrant:
// callers must never run two operations against one instance at the same time.
// The transcode adapter guarantees this by funnelling every call through one
// task queue.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Engine is a stateful, non-reentrant command executor with private storage.
type Engine interface {
	// Load prepares the engine. It is called exactly once, before any other method.
	Load(ctx context.Context) error
	WriteFile(ctx context.Context, name string, data []byte) error
	// Exec runs one command. A non-zero exit is reported as *ExecError.
	Exec(ctx context.Context, args []string) error
	ReadFile(ctx context.Context, name string) (Contents, error)
	DeleteFile(ctx context.Context, name string) error
	// Close releases the engine and removes its private storage.
	Close() error
}

// Factory constructs an engine that has not been loaded yet.
type Factory func(ctx context.Context) (Engine, error)

// Contents is the value read back from engine storage: Binary or Text.
type Contents interface {
	isContents()
}

// Binary is raw artifact bytes.
type Binary []byte

// Text is an artifact the engine decoded as a string.
type Text string

func (Binary) isContents() {}
func (Text) isContents()   {}

var (
	// ErrInvalidName marks an artifact name that could escape engine storage.
	ErrInvalidName = errors.New("invalid artifact name")
	// ErrNotLoaded is returned by engine methods called before Load.
	ErrNotLoaded = errors.New("engine not loaded")
)

// ValidateName checks that name is a bare file name.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), filepath.Base(name) != name:
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidName, name)
	}
	return nil
}

// StderrTailLimit bounds the stderr kept on ExecError.
const StderrTailLimit = 4 << 10

// ExecError describes a command that ran but did not succeed.
type ExecError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("ffmpeg exited with status %d", e.ExitCode)
	if line := lastLine(e.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// TailStderr keeps the last StderrTailLimit bytes of captured output.
func TailStderr(stderr []byte) string {
	if len(stderr) > StderrTailLimit {
		stderr = stderr[len(stderr)-StderrTailLimit:]
	}
	return strings.TrimSpace(string(stderr))
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(s)
}
