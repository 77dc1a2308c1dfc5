package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle position of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when a job id has no row.
var ErrNotFound = errors.New("job not found")

// ParseStatus validates a user-supplied status filter.
func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(value))); s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown job status %q", value)
	}
}

// IsTerminal reports whether the job will not change again.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one row of the jobs table.
type Job struct {
	ID           string
	Status       Status
	Command      []string
	OutputExt    string
	InputBytes   int64
	OutputBytes  int64
	ErrorKind    string
	ErrorMessage string
	Duration     time.Duration
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// timeLayout is fixed-width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTime(value sql.NullString) time.Time {
	if !value.Valid || value.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, value.String)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, value.String)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

const jobColumns = "id, status, command_json, output_ext, input_bytes, output_bytes, error_kind, error_message, duration_ms, created_at, started_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		status       string
		commandJSON  string
		errorKind    sql.NullString
		errorMessage sql.NullString
		durationMS   int64
		createdAt    sql.NullString
		startedAt    sql.NullString
		finishedAt   sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&status,
		&commandJSON,
		&job.OutputExt,
		&job.InputBytes,
		&job.OutputBytes,
		&errorKind,
		&errorMessage,
		&durationMS,
		&createdAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(commandJSON), &job.Command); err != nil {
		return nil, fmt.Errorf("decode command for job %s: %w", job.ID, err)
	}
	job.Status = Status(status)
	job.ErrorKind = errorKind.String
	job.ErrorMessage = errorMessage.String
	job.Duration = time.Duration(durationMS) * time.Millisecond
	job.CreatedAt = parseTime(createdAt)
	job.StartedAt = parseTime(startedAt)
	job.FinishedAt = parseTime(finishedAt)
	return &job, nil
}
