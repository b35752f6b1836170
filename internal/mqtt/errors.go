package mqtt

import "errors"

var (
	// ErrNotConnected is returned when publishing while the broker is unreachable.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed wraps failures of the initial broker connection.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrInvalidTopic is returned for topics outside the bridge's namespace.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
