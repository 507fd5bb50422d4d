package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when the event sink is switched off.
	ErrDisabled = errors.New("influxdb: event sink disabled")

	// ErrConnectionFailed wraps a failed ping or an unhealthy server at Connect.
	ErrConnectionFailed = errors.New("influxdb: server unreachable")

	// ErrNotConnected is returned by HealthCheck once the client is closed.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps batch write errors handed to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: event write failed")
)
