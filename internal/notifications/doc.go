// Package notifications posts ntfy alerts about finished transcodes and
// engine failures.
//
// Notifier plugs into the transcode adapter as a Recorder. Sends run in the
// background so a slow ntfy server never holds up the engine queue; Wait
// drains them during shutdown. A nil *Notifier is valid and does nothing.
package notifications
