package history

import (
	"context"
	"fmt"
	"time"
)

// InterruptedMessage is stored on jobs that were still active when their
// process exited.
const InterruptedMessage = "interrupted"

// Counts returns the number of jobs per status.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// Prune deletes finished jobs created before olderThan.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND created_at < ?`,
		StatusSucceeded, StatusFailed, formatTime(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes every finished job. Active jobs are left alone.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status IN (?, ?)`, StatusSucceeded, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// FailInterrupted marks queued and running jobs as failed. Call it before a
// new process starts recording so rows left by a crash do not linger.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs
         SET status = ?, error_kind = ?, error_message = ?, finished_at = ?
         WHERE status IN (?, ?)`,
		StatusFailed,
		"interrupted",
		InterruptedMessage,
		formatTime(time.Now()),
		StatusQueued,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}
