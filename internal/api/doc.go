// Package api serves the transcode adapter and the job history over HTTP.
//
// # Routes
//
// POST /v1/transcode accepts a multipart form with a JSON "command" array, an
// optional "ext" for the output artifact, and the "input" file. The response
// body is the output artifact. X-Job-Id and X-Duration-Ms are always set when
// a job was created.
//
// GET /v1/jobs and GET /v1/jobs/{id} read the job history. Both return 404
// when history is disabled.
//
// GET /healthz reports engine state and queue depth. GET /metrics serves the
// Prometheus registry.
//
// # Errors
//
// Failures are JSON objects {"error": message, "kind": kind}. The kind is the
// transcode error kind and selects the status code: invalid_command 400,
// initialization and unavailable 503, execution 422, contract_violation 502,
// canceled 499.
package api
