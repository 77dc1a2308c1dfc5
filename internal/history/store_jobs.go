package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ffexec/internal/transcode"
)

var _ transcode.Recorder = (*Store)(nil)

// Queued inserts a new job row.
func (s *Store) Queued(ctx context.Context, job transcode.Job) error {
	command := job.Command
	if command == nil {
		command = []string{}
	}
	commandJSON, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO jobs (id, status, command_json, output_ext, input_bytes, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID,
		StatusQueued,
		string(commandJSON),
		job.OutputExt,
		job.InputBytes,
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Started marks a queued job as running.
func (s *Store) Started(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		StatusRunning, formatTime(time.Now()), id, StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	return requireRow(res, id)
}

// Finished records the job outcome.
func (s *Store) Finished(ctx context.Context, id string, outcome transcode.Outcome) error {
	status := StatusSucceeded
	var errMessage string
	if outcome.Err != nil {
		status = StatusFailed
		errMessage = outcome.Err.Error()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, output_bytes = ?, error_kind = ?, error_message = ?,
             duration_ms = ?, finished_at = ?
         WHERE id = ?`,
		status,
		outcome.OutputBytes,
		nullableString(transcode.Kind(outcome.Err)),
		nullableString(errMessage),
		outcome.Duration.Milliseconds(),
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Get fetches one job. It returns ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns the newest jobs first, optionally filtered by status. A limit
// of zero or less returns every match.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
