// Command ffexec runs ffmpeg commands one at a time against a private engine
// workspace.
//
// ffexec run executes a single command against a local file. ffexec serve
// exposes the same adapter over HTTP and records every job in the history
// database, which ffexec jobs inspects and prunes.
package main
