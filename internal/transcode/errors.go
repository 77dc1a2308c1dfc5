package transcode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ffexec/internal/engine"
	"ffexec/internal/taskqueue"
)

// Error markers. Every error returned by Adapter carries at most one of the
// first four, so callers can classify with errors.Is or Kind.
var (
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInitialization    = errors.New("engine initialization failed")
	ErrExecution         = errors.New("engine execution failed")
	ErrContractViolation = errors.New("engine contract violation")
	// ErrCleanup tags artifact deletion failures. They are logged and counted,
	// never returned.
	ErrCleanup = errors.New("artifact cleanup failed")
)

// Error kinds reported by Kind.
const (
	KindNone              = ""
	KindInvalidCommand    = "invalid_command"
	KindInitialization    = "initialization"
	KindExecution         = "execution"
	KindContractViolation = "contract_violation"
	KindCanceled          = "canceled"
	KindUnavailable       = "unavailable"
	KindInternal          = "internal"
)

// wrap tags err with marker and the failing operation while keeping both
// reachable through errors.Is.
func wrap(marker error, operation string, err error) error {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "transcode"
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, operation, err)
	}
	return fmt.Errorf("%w: %s", marker, operation)
}

// Kind classifies err for history, metrics, and HTTP status mapping.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidCommand):
		return KindInvalidCommand
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, taskqueue.ErrClosed), errors.Is(err, engine.ErrClosed):
		return KindUnavailable
	case errors.Is(err, ErrInitialization):
		return KindInitialization
	case errors.Is(err, ErrExecution):
		return KindExecution
	case errors.Is(err, ErrContractViolation):
		return KindContractViolation
	case errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
