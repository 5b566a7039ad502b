package rabbitmq

import "errors"

var (
	// ErrNotConnected is returned when there is no open connection to publish on.
	ErrNotConnected = errors.New("rabbitmq: not connected")

	// ErrInvalidURI is returned when the configured broker URI cannot be parsed.
	ErrInvalidURI = errors.New("rabbitmq: invalid uri")

	// ErrConnectionFailed is returned when dialing the broker fails.
	ErrConnectionFailed = errors.New("rabbitmq: connection failed")

	// ErrChannelUnavailable is returned when a channel cannot be opened.
	ErrChannelUnavailable = errors.New("rabbitmq: channel unavailable")

	// ErrPublishFailed is returned when sending a message fails.
	ErrPublishFailed = errors.New("rabbitmq: publish failed")

	// ErrNacked is returned when the broker negatively acknowledges a
	// confirmed publish.
	ErrNacked = errors.New("rabbitmq: publish nacked by broker")
)
