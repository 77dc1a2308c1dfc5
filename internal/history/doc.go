// Package history persists transcode jobs in SQLite so the CLI and HTTP API
// can report what ran, how long it took, and why it failed.
//
// Store implements transcode.Recorder. Rows move queued -> running ->
// succeeded|failed. Rows left queued or running by a process that exited are
// marked failed by FailInterrupted when the daemon starts.
//
// The schema is versioned; a version mismatch is reported as ErrSchemaMismatch
// and resolved with "ffexec jobs clear" or by deleting the database.
package history
