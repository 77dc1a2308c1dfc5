// Package ids generates identifiers for engine artifacts and transcode jobs.
package ids

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns prefix followed by 32 hex characters of a random UUID.
// Artifact names built this way never repeat across calls.
func New(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewJobID returns a lexically sortable ULID used to identify transcode jobs.
func NewJobID() string {
	return ulid.Make().String()
}
