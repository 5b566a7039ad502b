//go:build integration
// +build integration

package kafka

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/event-publisher/pkg/session"
)

const (
	kafkaImage  = "confluentinc/cp-kafka:7.5.0"
	testTopic   = "events-publish"
	testTimeout = 30 * time.Second
)

type kafkaContainer struct {
	container testcontainers.Container
	brokers   string
}

func setupKafka(t *testing.T) *kafkaContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        kafkaImage,
		ExposedPorts: []string{"9093/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			// Bind container port 9093 to host port 9093 to match advertised listeners
			hc.PortBindings = map[nat.Port][]nat.PortBinding{
				"9093/tcp": {{HostIP: "127.0.0.1", HostPort: "9093"}},
			}
		},
		Env: map[string]string{
			"KAFKA_LISTENERS":                                "PLAINTEXT://0.0.0.0:9093,BROKER://0.0.0.0:9092,CONTROLLER://0.0.0.0:9094",
			"KAFKA_ADVERTISED_LISTENERS":                     "PLAINTEXT://localhost:9093,BROKER://localhost:9092",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":           "CONTROLLER:PLAINTEXT,BROKER:PLAINTEXT,PLAINTEXT:PLAINTEXT",
			"KAFKA_INTER_BROKER_LISTENER_NAME":               "BROKER",
			"KAFKA_CONTROLLER_LISTENER_NAMES":                "CONTROLLER",
			"KAFKA_CONTROLLER_QUORUM_VOTERS":                 "1@localhost:9094",
			"KAFKA_PROCESS_ROLES":                            "broker,controller",
			"KAFKA_NODE_ID":                                  "1",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR":         "1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR": "1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR":            "1",
			"KAFKA_LOG_FLUSH_INTERVAL_MESSAGES":              "1",
			"KAFKA_GROUP_INITIAL_REBALANCE_DELAY_MS":         "0",
			"CLUSTER_ID":                                     "MkU3OEVBNTcwNTJENDM2Qk",
		},
		WaitingFor: wait.ForLog("Kafka Server started").WithStartupTimeout(testTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	// Since we bound port 9093 to host, we can connect directly
	brokers := "localhost:9093"

	// Give Kafka extra time to fully start and stabilize
	time.Sleep(10 * time.Second)


	return &kafkaContainer{
		container: container,
		brokers:   brokers,
	}
}

func (kc *kafkaContainer) teardown(t *testing.T) {
	if err := testcontainers.TerminateContainer(kc.container); err != nil {
		t.Logf("failed to terminate Kafka container: %v", err)
	}
}

func consumeAll(t *testing.T, brokers string, n int) []*kafka.Message {
	t.Helper()
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          "session-it",
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.SubscribeTopics([]string{testTopic}, nil))

	var out []*kafka.Message
	deadline := time.Now().Add(testTimeout)
	for len(out) < n && time.Now().Before(deadline) {
		msg, err := consumer.ReadMessage(time.Second)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func TestIntegration_SessionPublishesInOrder(t *testing.T) {
	kc := setupKafka(t)
	defer kc.teardown(t)

	s, err := NewSession(Config{
		Name:             "integration",
		BootstrapServers: kc.brokers,
		Topic:            testTopic,
		Key:              "review",
		Headers:          session.Headers{}.String("source-name", "integration"),
		EnsureTopic:      true,
	}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer s.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Publish(ctx, session.Message{
			ID:   fmt.Sprintf("msg-%d", i),
			Type: "ref-updated",
			Body: []byte(fmt.Sprintf(`{"n":%d}`, i)),
		}))
	}

	msgs := consumeAll(t, kc.brokers, 5)
	require.Len(t, msgs, 5)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), string(m.Value))
		assert.Equal(t, "review", string(m.Key))
	}
}
