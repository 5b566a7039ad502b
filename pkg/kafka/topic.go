package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const metadataTimeout = 10 * time.Second

// TopicConfig holds the desired shape of the publish topic.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// topicAdmin is the subset of *kafka.AdminClient used to manage topics.
type topicAdmin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	CreatePartitions(ctx context.Context, partitions []kafka.PartitionsSpecification, options ...kafka.CreatePartitionsAdminOption) ([]kafka.TopicResult, error)
}

// EnsureTopic creates the topic when missing and grows its partition count
// when it has fewer than configured. A topic with more partitions, or a
// different replication factor, is left alone with a warning.
func EnsureTopic(ctx context.Context, admin topicAdmin, cfg TopicConfig, log *zap.SugaredLogger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid topic config: %w", err)
	}

	md, err := admin.GetMetadata(&cfg.Name, false, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("failed to get metadata for topic %q: %w", cfg.Name, err)
	}

	tm, exists := md.Topics[cfg.Name]
	if !exists || tm.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return createTopic(ctx, admin, cfg, log)
	}
	if tm.Error.Code() != kafka.ErrNoError {
		return fmt.Errorf("topic %q has error: %w", cfg.Name, tm.Error)
	}

	current := len(tm.Partitions)
	if rf := replicationFactor(tm); rf != cfg.ReplicationFactor {
		log.Warnw("topic replication factor differs from config",
			"topic", cfg.Name,
			"current", rf,
			"desired", cfg.ReplicationFactor,
		)
	}

	switch {
	case current < cfg.NumPartitions:
		log.Infow("increasing topic partitions", "topic", cfg.Name, "from", current, "to", cfg.NumPartitions)
		results, err := admin.CreatePartitions(ctx, []kafka.PartitionsSpecification{
			{Topic: cfg.Name, IncreaseTo: cfg.NumPartitions},
		})
		if err != nil {
			return fmt.Errorf("failed to increase partitions for topic %q: %w", cfg.Name, err)
		}
		return checkResults(results, "increase partitions for")
	case current > cfg.NumPartitions:
		log.Warnw("topic has more partitions than configured",
			"topic", cfg.Name,
			"current", current,
			"desired", cfg.NumPartitions,
		)
	}
	return nil
}

func createTopic(ctx context.Context, admin topicAdmin, cfg TopicConfig, log *zap.SugaredLogger) error {
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %q: %w", cfg.Name, err)
	}
	for _, r := range results {
		if r.Error.Code() == kafka.ErrTopicAlreadyExists {
			log.Infow("topic already exists", "topic", r.Topic)
			continue
		}
		if r.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to create topic %q: %w", r.Topic, r.Error)
		}
		log.Infow("created topic",
			"topic", r.Topic,
			"partitions", cfg.NumPartitions,
			"replicationFactor", cfg.ReplicationFactor,
		)
	}
	return nil
}

func checkResults(results []kafka.TopicResult, op string) error {
	for _, r := range results {
		if r.Error.Code() != kafka.ErrNoError {
			return fmt.Errorf("failed to %s topic %q: %w", op, r.Topic, r.Error)
		}
	}
	return nil
}

func replicationFactor(tm kafka.TopicMetadata) int {
	if len(tm.Partitions) == 0 {
		return 0
	}
	return len(tm.Partitions[0].Replicas)
}
