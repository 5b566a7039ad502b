package nats

import (
	"errors"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultFlushTimeout   = 5 * time.Second
)

// Config holds the NATS session settings. The subject is built from
// Exchange and RoutingKey.
type Config struct {
	Name           string
	URL            string
	Username       string
	Password       string
	Exchange       string
	RoutingKey     string
	ConnectTimeout time.Duration

	// Flush waits for the server to process each publish before returning.
	Flush        bool
	FlushTimeout time.Duration
}

func (c Config) WithDefaults() Config {
	if c.URL == "" {
		c.URL = natsgo.DefaultURL
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = defaultFlushTimeout
	}
	return c
}

func (c Config) Validate() error {
	if c.Exchange == "" {
		return errors.New("nats exchange must not be empty")
	}
	return nil
}

// Subject is "exchange.routingKey", or just the exchange when the key is empty.
func (c Config) Subject() string {
	if c.RoutingKey == "" {
		return c.Exchange
	}
	return c.Exchange + "." + c.RoutingKey
}
