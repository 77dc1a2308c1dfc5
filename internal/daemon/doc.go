// Package daemon owns the long-lived ffexec runtime.
//
// It wires configuration, the job history, Prometheus metrics, the lazily
// loaded engine, and the transcode adapter into a single lifecycle. Start
// takes a flock-based lock so only one serving instance records into a given
// log directory, and marks jobs left active by a previous crash as failed.
//
// One-shot commands use New and the Adapter without calling Start.
package daemon
