// Package logs tails the ffexec log file for `ffexec logs`.
//
// Reading is line-oriented with bounded memory: the last N lines come from a
// ring buffer, and follow mode polls for appended lines until the context
// ends. A truncated or rotated file restarts from its beginning.
package logs
