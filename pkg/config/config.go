package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/event-publisher/pkg/session"
)

// Broker backend types.
const (
	BrokerAMQP  = "amqp"
	BrokerKafka = "kafka"
	BrokerMQTT  = "mqtt"
	BrokerNATS  = "nats"
)

const (
	DefaultURI             = "amqp://localhost"
	DefaultExchange        = "events.publish"
	DefaultMonitorInterval = 15 * time.Second
	MinMonitorInterval     = 5 * time.Second
	DefaultFailureCount    = 15
	DefaultQueueCapacity   = 16384
	DefaultStartupDelay    = 15 * time.Second
	DefaultReadyWait       = time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Site is the full configuration of one publisher.
type Site struct {
	// Name is the site file name without extension. It is not read from YAML.
	Name string `yaml:"-"`

	Broker    BrokerConfig    `yaml:"broker"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	NATS      NATSConfig      `yaml:"nats"`
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Message   MessageConfig   `yaml:"message"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Queue     QueueConfig     `yaml:"queue"`
	Publisher PublisherConfig `yaml:"publisher"`
	Source    SourceConfig    `yaml:"source"`
}

type BrokerConfig struct {
	Type string `yaml:"type"`
}

type AMQPConfig struct {
	URI         string        `yaml:"uri"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Confirm     bool          `yaml:"confirm"`
	Heartbeat   time.Duration `yaml:"heartbeat"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
}

type KafkaConfig struct {
	BootstrapServers  string `yaml:"bootstrapServers"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	Mechanism         string `yaml:"mechanism"`
	SecurityProtocol  string `yaml:"securityProtocol"`
	EnsureTopic       bool   `yaml:"ensureTopic"`
	NumPartitions     int    `yaml:"numPartitions"`
	ReplicationFactor int    `yaml:"replicationFactor"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retained bool   `yaml:"retained"`
}

type NATSConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Flush    bool   `yaml:"flush"`
}

type ExchangeConfig struct {
	Name string `yaml:"name"`
}

type MessageConfig struct {
	DeliveryMode uint8  `yaml:"deliveryMode"`
	Priority     uint8  `yaml:"priority"`
	RoutingKey   string `yaml:"routingKey"`
}

type MonitorConfig struct {
	Interval     time.Duration `yaml:"interval"`
	FailureCount int           `yaml:"failureCount"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type PublisherConfig struct {
	StartupDelay    time.Duration `yaml:"startupDelay"`
	ReadyWait       time.Duration `yaml:"readyWait"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SourceConfig describes the system events originate from. Most fields are
// copied into message headers.
type SourceConfig struct {
	Name     string `yaml:"name"`
	Hostname string `yaml:"hostname"`
	Scheme   string `yaml:"scheme"`
	Port     int32  `yaml:"port"`
	FrontURL string `yaml:"frontUrl"`
	Version  string `yaml:"version"`

	// ListenAs publishes only the events visible to this identity.
	ListenAs string `yaml:"listenAs"`
}

func defaultSite() Site {
	return Site{
		Broker:   BrokerConfig{Type: BrokerAMQP},
		AMQP:     AMQPConfig{URI: DefaultURI},
		Exchange: ExchangeConfig{Name: DefaultExchange},
		Message:  MessageConfig{DeliveryMode: 1},
		Monitor: MonitorConfig{
			Interval:     DefaultMonitorInterval,
			FailureCount: DefaultFailureCount,
		},
		Queue: QueueConfig{Capacity: DefaultQueueCapacity},
		Publisher: PublisherConfig{
			StartupDelay:    DefaultStartupDelay,
			ReadyWait:       DefaultReadyWait,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}

// normalize enforces floors and fills values an overlay zeroed out.
func (s *Site) normalize() {
	if s.Monitor.Interval < MinMonitorInterval {
		s.Monitor.Interval = MinMonitorInterval
	}
	if s.Monitor.FailureCount <= 0 {
		s.Monitor.FailureCount = DefaultFailureCount
	}
	if s.Queue.Capacity <= 0 {
		s.Queue.Capacity = DefaultQueueCapacity
	}
	if s.Publisher.ReadyWait <= 0 {
		s.Publisher.ReadyWait = DefaultReadyWait
	}
	if s.Publisher.ShutdownTimeout <= 0 {
		s.Publisher.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.Broker.Type == "" {
		s.Broker.Type = BrokerAMQP
	}
}

// Validate checks the configuration for required values and valid ranges.
func (s *Site) Validate() error {
	var errs []error

	switch s.Broker.Type {
	case BrokerAMQP:
		if s.AMQP.URI == "" {
			errs = append(errs, errors.New("amqp.uri is required"))
		}
	case BrokerKafka, BrokerMQTT, BrokerNATS:
	default:
		errs = append(errs, fmt.Errorf("broker.type %q is not one of amqp, kafka, mqtt, nats", s.Broker.Type))
	}

	if s.Exchange.Name == "" {
		errs = append(errs, errors.New("exchange.name is required"))
	}
	if s.Message.DeliveryMode != 1 && s.Message.DeliveryMode != 2 {
		errs = append(errs, fmt.Errorf("message.deliveryMode must be 1 or 2, got %d", s.Message.DeliveryMode))
	}
	if s.Message.Priority > 9 {
		errs = append(errs, fmt.Errorf("message.priority must be between 0 and 9, got %d", s.Message.Priority))
	}
	if s.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", s.MQTT.QoS))
	}
	if s.Publisher.StartupDelay < 0 {
		errs = append(errs, errors.New("publisher.startupDelay must not be negative"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("site %q: %w", s.Name, err)
	}
	return nil
}

// Headers maps the source section to static message headers. Empty strings
// and a zero port are left out.
func (s *Site) Headers() session.Headers {
	return session.Headers{}.
		String("source-name", s.Source.Name).
		String("source-host", s.Source.Hostname).
		String("source-scheme", s.Source.Scheme).
		Int("source-port", s.Source.Port).
		String("source-front-url", s.Source.FrontURL).
		String("source-version", s.Source.Version)
}
