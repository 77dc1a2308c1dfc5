package api

import (
	"time"

	"ffexec/internal/history"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a history row in a transport-friendly format.
type Job struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Command      []string `json:"command"`
	OutputExt    string   `json:"outputExt,omitempty"`
	InputBytes   int64    `json:"inputBytes"`
	OutputBytes  int64    `json:"outputBytes"`
	DurationMS   int64    `json:"durationMs"`
	ErrorKind    string   `json:"errorKind,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	StartedAt    string   `json:"startedAt,omitempty"`
	FinishedAt   string   `json:"finishedAt,omitempty"`
}

// JobList wraps GET /v1/jobs.
type JobList struct {
	Jobs  []Job `json:"jobs"`
	Limit int   `json:"limit"`
}

// Health is the GET /healthz payload.
type Health struct {
	Status         string `json:"status"`
	Engine         string `json:"engine"`
	Pending        int    `json:"pending"`
	Busy           bool   `json:"busy"`
	HistoryEnabled bool   `json:"historyEnabled"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// FromJob converts a history row.
func FromJob(job *history.Job) Job {
	if job == nil {
		return Job{}
	}
	command := job.Command
	if command == nil {
		command = []string{}
	}
	return Job{
		ID:           job.ID,
		Status:       string(job.Status),
		Command:      command,
		OutputExt:    job.OutputExt,
		InputBytes:   job.InputBytes,
		OutputBytes:  job.OutputBytes,
		DurationMS:   job.Duration.Milliseconds(),
		ErrorKind:    job.ErrorKind,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    formatTime(job.CreatedAt),
		StartedAt:    formatTime(job.StartedAt),
		FinishedAt:   formatTime(job.FinishedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
