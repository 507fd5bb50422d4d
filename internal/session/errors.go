package session

import "errors"

// Domain-specific errors for the session package.
var (
	// ErrNoHost is returned when the broker host is empty.
	ErrNoHost = errors.New("broker host is required")

	// ErrInvalidPort is returned when the broker port is out of range.
	ErrInvalidPort = errors.New("broker port must be between 1 and 65535")

	// ErrInvalidScheme is returned for a transport scheme other than tcp:// or ssl://.
	ErrInvalidScheme = errors.New("unsupported transport scheme")

	// ErrNoClientID is returned when the client identifier is empty.
	ErrNoClientID = errors.New("client id is required")

	// ErrNoTopics is returned when no non-blank topic is configured.
	ErrNoTopics = errors.New("at least one topic is required")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session manager closed")

	// ErrNoDialer is returned by New when Options.Dial is nil.
	ErrNoDialer = errors.New("dialer is required")

	// errUnknownCause stands in for a nil connection-lost cause.
	errUnknownCause = errors.New("unknown cause")
)
