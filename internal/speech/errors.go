package speech

import "errors"

// Domain-specific errors for the speech package.
var (
	// ErrNotReady is returned by AwaitReady when initialisation failed.
	ErrNotReady = errors.New("speech: engine not ready")

	// ErrInvalidMode is returned for a queue mode other than enqueue or replace.
	ErrInvalidMode = errors.New("speech: invalid queue mode")

	// ErrUnknownEngine is returned by New for an unsupported engine name.
	ErrUnknownEngine = errors.New("speech: unknown engine")

	// ErrSynthesisRejected is returned when the engine refuses the input
	// (text too long, bad SSML). Retrying will not help.
	ErrSynthesisRejected = errors.New("speech: synthesis rejected")

	// ErrSynthesisUnavailable is returned for throttling, service faults
	// and transport errors.
	ErrSynthesisUnavailable = errors.New("speech: synthesis unavailable")

	// ErrSynthesisTimeout is returned when a request exceeds its deadline.
	ErrSynthesisTimeout = errors.New("speech: synthesis timed out")

	// ErrPlaybackFailed is returned when an AudioSink cannot consume audio.
	ErrPlaybackFailed = errors.New("speech: playback failed")
)
