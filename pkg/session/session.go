// Package session defines the contract between a publisher and the broker
// connection it publishes through.
//
// A Session owns at most one live broker connection and, for brokers that
// multiplex, one live channel on it. Implementations must be safe for
// concurrent use by the publishing loop, the connection monitor and the
// broker client's own close notifications, and must never hold a lock across
// a network call.
package session

import (
	"context"
	"time"
)

// State is the observable connection state of a session.
type State int32

const (
	// StateDisconnected means there is no live connection.
	StateDisconnected State = iota
	// StateConnected means the connection is open but no channel has been
	// verified on it yet.
	StateConnected
	// StateReady means both the connection and the channel are open.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Message is one serialized event plus the per-message metadata a session
// combines with its configured properties.
type Message struct {
	ID        string
	Type      string
	Body      []byte
	Timestamp time.Time
	// Headers are added on top of the session's configured headers.
	Headers map[string]string
}

type Session interface {
	// Connect opens the connection and channel. It is a no-op returning nil
	// when the session is already ready. Connect never retries internally.
	Connect(ctx context.Context) error

	// IsReady reports whether the session can publish right now.
	IsReady() bool

	// State returns the current connection state.
	State() State

	// Publish sends one message. A failed send is not retried; the caller
	// decides what happens to the message.
	Publish(ctx context.Context, msg Message) error

	// Disconnect closes the channel and the connection, logging close errors.
	// The session is always disconnected afterwards. Disconnect is idempotent.
	Disconnect()
}
