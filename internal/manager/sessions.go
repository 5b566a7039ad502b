package manager

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/event-publisher/pkg/config"
	"github.com/ava-labs/event-publisher/pkg/kafka"
	"github.com/ava-labs/event-publisher/pkg/mqtt"
	"github.com/ava-labs/event-publisher/pkg/nats"
	"github.com/ava-labs/event-publisher/pkg/rabbitmq"
	"github.com/ava-labs/event-publisher/pkg/session"
)

// SessionFactory builds the broker session for one site.
type SessionFactory func(site config.Site, log *zap.SugaredLogger) (session.Session, error)

// amqpDialer dials with the site's confirm mode and dial timeout. A zero
// timeout falls back to rabbitmq.DefaultDialTimeout.
func amqpDialer(site config.Site) rabbitmq.AMQPDialer {
	return rabbitmq.AMQPDialer{Confirm: site.AMQP.Confirm, Timeout: site.AMQP.DialTimeout}
}

// NewBrokerSession builds the session for the site's broker type.
func NewBrokerSession(site config.Site, log *zap.SugaredLogger) (session.Session, error) {
	switch site.Broker.Type {
	case config.BrokerAMQP, "":
		return rabbitmq.NewSession(rabbitmq.Config{
			Name:             site.Name,
			URI:              site.AMQP.URI,
			Username:         site.AMQP.Username,
			Password:         site.AMQP.Password,
			Exchange:         site.Exchange.Name,
			RoutingKey:       site.Message.RoutingKey,
			DeliveryMode:     site.Message.DeliveryMode,
			Priority:         site.Message.Priority,
			Headers:          site.Headers(),
			Confirm:          site.AMQP.Confirm,
			Heartbeat:        site.AMQP.Heartbeat,
			FailureThreshold: site.Monitor.FailureCount,
		}, amqpDialer(site), log)
	case config.BrokerKafka:
		return kafka.NewSession(kafka.Config{
			Name:             site.Name,
			BootstrapServers: site.Kafka.BootstrapServers,
			Topic:            site.Exchange.Name,
			Key:              site.Message.RoutingKey,
			Headers:          site.Headers(),
			SASL: kafka.SASLConfig{
				Username:         site.Kafka.Username,
				Password:         site.Kafka.Password,
				Mechanism:        site.Kafka.Mechanism,
				SecurityProtocol: site.Kafka.SecurityProtocol,
			},
			EnsureTopic:       site.Kafka.EnsureTopic,
			NumPartitions:     site.Kafka.NumPartitions,
			ReplicationFactor: site.Kafka.ReplicationFactor,
		}, log)
	case config.BrokerMQTT:
		return mqtt.NewSession(mqtt.Config{
			Name:       site.Name,
			Broker:     site.MQTT.Broker,
			Username:   site.MQTT.Username,
			Password:   site.MQTT.Password,
			Exchange:   site.Exchange.Name,
			RoutingKey: site.Message.RoutingKey,
			QoS:        site.MQTT.QoS,
			Retained:   site.MQTT.Retained,
		}, nil, log)
	case config.BrokerNATS:
		return nats.NewSession(nats.Config{
			Name:       site.Name,
			URL:        site.NATS.URL,
			Username:   site.NATS.Username,
			Password:   site.NATS.Password,
			Exchange:   site.Exchange.Name,
			RoutingKey: site.Message.RoutingKey,
			Flush:      site.NATS.Flush,
		}, site.Headers(), log)
	default:
		return nil, fmt.Errorf("unsupported broker type %q", site.Broker.Type)
	}
}
