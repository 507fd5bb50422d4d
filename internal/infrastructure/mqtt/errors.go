package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrTransportClosed is returned by operations on a closed Transport.
	ErrTransportClosed = errors.New("mqtt: transport closed")

	// ErrInvalidConfig is returned by Dial for an unusable connection config.
	ErrInvalidConfig = errors.New("mqtt: invalid connection config")

	// ErrSubscribeRejected is returned when the broker refuses one or more
	// topic filters in a SUBACK.
	ErrSubscribeRejected = errors.New("mqtt: subscription rejected by broker")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty or malformed topic filter.
	ErrInvalidTopic = errors.New("mqtt: invalid topic filter")
)
