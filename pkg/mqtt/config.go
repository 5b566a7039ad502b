package mqtt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultBroker = "tcp://localhost:1883"

	defaultConnectTimeout    = 10 * time.Second
	defaultKeepAlive         = 30 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	maxQoS                   = 2
)

// Config holds the MQTT session settings. The publish topic is built from
// Exchange and RoutingKey.
type Config struct {
	Name           string
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Exchange       string
	RoutingKey     string
	QoS            byte
	Retained       bool
	ConnectTimeout time.Duration
	KeepAlive      time.Duration
}

// WithDefaults returns a copy of the config with zero fields filled in.
func (c Config) WithDefaults() Config {
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.ClientID == "" {
		c.ClientID = c.Name
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	return c
}

func (c Config) Validate() error {
	var errs []error
	if c.Exchange == "" {
		errs = append(errs, errors.New("mqtt exchange must not be empty"))
	}
	if c.QoS > maxQoS {
		errs = append(errs, fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.QoS))
	}
	if strings.ContainsAny(c.Exchange+c.RoutingKey, "#+") {
		errs = append(errs, errors.New("mqtt topic must not contain wildcards"))
	}
	return errors.Join(errs...)
}

// Topic is "exchange/routingKey", or just the exchange when the key is empty.
func (c Config) Topic() string {
	if c.RoutingKey == "" {
		return c.Exchange
	}
	return c.Exchange + "/" + c.RoutingKey
}
