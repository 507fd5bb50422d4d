// Package voice classifies inbound broker payloads and routes them to the
// speech sink and the event notifier.
//
// A payload is either a structured voice command:
//
//	{"type":"tts_dynamic","txt":"front door opened"}
//
// or anything else, which is spoken verbatim as plain text. Malformed JSON,
// JSON of another shape and non-JSON text all take the plain-text path, so a
// message is never dropped just because it is not the expected envelope.
// A command whose txt is blank is ignored and reported as a status event.
//
// The classifier is pure and safe for concurrent use. The Dispatcher is
// driven by a single goroutine owned by the session manager.
package voice
