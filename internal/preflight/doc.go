// Package preflight provides readiness checks for the filesystem paths and
// engine dependencies ffexec relies on.
//
// These checks run in two contexts:
//   - "ffexec serve" calls RunAll before binding the API and refuses to start
//     when a required check fails.
//   - The CLI "ffexec status" command renders the same results as a table.
//
// Engine checks follow the configured engine kind: the ffmpeg binary for the
// native engine, the module source for the wasm engine.
package preflight
