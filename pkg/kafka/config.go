package kafka

import (
	"errors"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/ava-labs/event-publisher/pkg/session"
)

const (
	DefaultBootstrapServers = "localhost:9092"
	DefaultFlushTimeout     = 15 * time.Second
	messageMaxBytes         = 20971521 // 20MB
)

// Config holds the Kafka session settings. Topic plays the role of the AMQP
// exchange and Key the routing key.
type Config struct {
	Name             string
	BootstrapServers string
	ClientID         string
	Topic            string
	Key              string
	Headers          session.Headers
	SASL             SASLConfig
	EnableLogs       bool
	FlushTimeout     time.Duration

	// EnsureTopic creates the topic (or grows its partitions) on first connect.
	EnsureTopic       bool
	NumPartitions     int
	ReplicationFactor int
}

// WithDefaults returns a copy of the config with zero fields filled in.
// This method does not mutate the original config.
func (c Config) WithDefaults() Config {
	if c.BootstrapServers == "" {
		c.BootstrapServers = DefaultBootstrapServers
	}
	if c.ClientID == "" {
		c.ClientID = c.Name
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	if c.NumPartitions <= 0 {
		c.NumPartitions = 1
	}
	if c.ReplicationFactor <= 0 {
		c.ReplicationFactor = 1
	}
	if c.Headers == nil {
		c.Headers = session.Headers{}
	}
	return c
}

func (c Config) Validate() error {
	if c.Topic == "" {
		return errors.New("kafka topic must not be empty")
	}
	return nil
}

// ConfigMap builds the librdkafka producer configuration.
func (c Config) ConfigMap() *kafka.ConfigMap {
	cfg := &kafka.ConfigMap{
		"bootstrap.servers": c.BootstrapServers,
		"client.id":         c.ClientID,

		// Reliability: wait for all replicas to acknowledge
		"acks": "all",

		"linger.ms":        5,
		"compression.type": "lz4",

		// Idempotence keeps librdkafka's internal retries from reordering
		// or duplicating within one producer session.
		"enable.idempotence": true,

		"go.logs.channel.enable": c.EnableLogs,
		"message.max.bytes":      messageMaxBytes,
	}
	c.SASL.ApplyToConfigMap(cfg)
	return cfg
}
