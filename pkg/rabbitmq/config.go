package rabbitmq

import (
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ava-labs/event-publisher/pkg/session"
)

const (
	DefaultURI              = "amqp://localhost"
	DefaultAppID            = "event-publisher"
	DefaultDialTimeout      = 30 * time.Second
	DefaultHeartbeat        = 10 * time.Second
	DefaultFailureThreshold = 15

	contentType     = "application/json"
	contentEncoding = "UTF-8"
)

// Config holds everything a Session needs. It is read once at construction.
type Config struct {
	// Name identifies the session in logs and as the AMQP connection name.
	Name string

	URI      string
	Username string
	// Password is already resolved: a secure store value wins over plaintext.
	Password string

	Exchange   string
	RoutingKey string

	AppID        string
	DeliveryMode uint8
	Priority     uint8
	Headers      session.Headers

	// Confirm puts the channel in confirm mode and waits for a broker ack on
	// every publish.
	Confirm bool

	Heartbeat time.Duration

	// FailureThreshold is the number of consecutive channel-open failures
	// tolerated before the connection itself is torn down.
	FailureThreshold int
}

// WithDefaults returns a copy of the config with zero fields filled in.
// This method does not mutate the original config.
func (c Config) WithDefaults() Config {
	if c.URI == "" {
		c.URI = DefaultURI
	}
	if c.AppID == "" {
		c.AppID = DefaultAppID
	}
	if c.DeliveryMode == 0 {
		c.DeliveryMode = amqp.Transient
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.Headers == nil {
		c.Headers = session.Headers{}
	}
	return c
}

// Validate checks the fields that WithDefaults cannot fill.
func (c Config) Validate() error {
	var errs []error
	if c.DeliveryMode != amqp.Transient && c.DeliveryMode != amqp.Persistent {
		errs = append(errs, errors.New("delivery mode must be 1 (transient) or 2 (persistent)"))
	}
	if c.Priority > 9 {
		errs = append(errs, errors.New("priority must be between 0 and 9"))
	}
	return errors.Join(errs...)
}
