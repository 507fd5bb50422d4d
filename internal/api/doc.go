// Package api implements the HTTP control surface and WebSocket event stream
// for mqtt-voice.
//
// This package provides:
//   - Connection control: PUT starts (or replaces) the broker session,
//     DELETE stops it
//   - Status: the session snapshot plus speech queue counters
//   - Event history from the journal
//   - A WebSocket hub that relays status, message and command events live
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Graceful Degradation
//
// The journal and the speech engine are optional. Without a journal the
// events endpoint answers 503; without speech the status omits its counters.
// The WebSocket stream works regardless.
package api
