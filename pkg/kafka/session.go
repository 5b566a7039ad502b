package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"github.com/ava-labs/event-publisher/pkg/session"
)

// ErrNotConnected is returned when no producer is open.
var ErrNotConnected = errors.New("kafka: not connected")

const queueFullErrorRetryDelay = time.Second

// producer is one librdkafka producer plus the goroutines draining its
// event and log channels.
type producer struct {
	p          *kafka.Producer
	closedCh   chan struct{}
	eventsDone chan struct{}
	logsDone   chan struct{}
	once       sync.Once
}

// Session publishes to one Kafka topic through a single producer.
//
// Connect creates the producer; the session reads as ready until Disconnect
// or until librdkafka reports a fatal error or that all brokers are down, at
// which point the producer is dropped and the next Connect builds a new one.
//
// Publish blocks until a delivery report arrives or ctx is done.
type Session struct {
	cfg Config
	log *zap.SugaredLogger

	mu   sync.Mutex
	prod *producer

	topicReady atomic.Bool
}

var _ session.Session = (*Session)(nil)

func NewSession(cfg Config, log *zap.SugaredLogger) (*Session, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Session{cfg: cfg, log: log}, nil
}

func (s *Session) Connect(ctx context.Context) error {
	if s.current() != nil {
		return nil
	}

	conf := s.cfg.ConfigMap()
	p, err := kafka.NewProducer(conf)
	if err != nil {
		s.log.Errorw("failed to create kafka producer", "error", err)
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}

	if s.cfg.EnsureTopic {
		if err := s.ensureTopic(ctx, p); err != nil {
			p.Close()
			return err
		}
	}

	prod := &producer{
		p:          p,
		closedCh:   make(chan struct{}),
		eventsDone: make(chan struct{}),
		logsDone:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.prod != nil {
		s.mu.Unlock()
		p.Close()
		return nil
	}
	s.prod = prod
	s.mu.Unlock()

	if s.cfg.EnableLogs {
		go s.printKafkaLogs(prod)
	} else {
		close(prod.logsDone)
	}
	go s.monitorProducerEvents(prod)

	s.log.Infow("kafka producer created", "bootstrapServers", s.cfg.BootstrapServers, "topic", s.cfg.Topic)
	return nil
}

func (s *Session) IsReady() bool {
	return s.current() != nil
}

func (s *Session) State() session.State {
	if s.IsReady() {
		return session.StateReady
	}
	return session.StateDisconnected
}

// Publish produces msg and waits for its delivery report. If ctx is done
// first, ctx.Err() is returned and the message MAY still be delivered.
func (s *Session) Publish(ctx context.Context, msg session.Message) error {
	prod := s.current()
	if prod == nil {
		return ErrNotConnected
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	topic := s.cfg.Topic
	kMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          msg.Body,
		Timestamp:      ts,
		Headers:        s.headers(msg),
	}
	if s.cfg.Key != "" {
		kMsg.Key = []byte(s.cfg.Key)
	}

	deliveryCh := make(chan kafka.Event, 1)
	if err := s.produceWithRetry(ctx, prod, kMsg, deliveryCh); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case e := <-deliveryCh:
		return handleDeliveryEvent(s.log, kMsg, e)
	}
}

// Disconnect flushes and closes the producer. Messages still queued when
// the flush timeout elapses are lost and counted in a warning.
func (s *Session) Disconnect() {
	s.mu.Lock()
	prod := s.prod
	s.prod = nil
	s.mu.Unlock()

	if prod != nil {
		s.closeProducer(prod)
	}
}

func (s *Session) current() *producer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prod
}

func (s *Session) headers(msg session.Message) []kafka.Header {
	values := s.cfg.Headers.Strings()
	for k, v := range msg.Headers {
		values[k] = v
	}
	out := make([]kafka.Header, 0, len(values)+4)
	for k, v := range values {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	out = append(out,
		kafka.Header{Key: "content-type", Value: []byte("application/json")},
		kafka.Header{Key: "content-encoding", Value: []byte("UTF-8")},
	)
	if msg.ID != "" {
		out = append(out, kafka.Header{Key: "message-id", Value: []byte(msg.ID)})
	}
	if msg.Type != "" {
		out = append(out, kafka.Header{Key: "type", Value: []byte(msg.Type)})
	}
	return out
}

func (s *Session) ensureTopic(ctx context.Context, p *kafka.Producer) error {
	if s.topicReady.Load() {
		return nil
	}
	admin, err := kafka.NewAdminClientFromProducer(p)
	if err != nil {
		return fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	defer admin.Close()

	err = EnsureTopic(ctx, admin, TopicConfig{
		Name:              s.cfg.Topic,
		NumPartitions:     s.cfg.NumPartitions,
		ReplicationFactor: s.cfg.ReplicationFactor,
	}, s.log)
	if err != nil {
		s.log.Errorw("failed to ensure kafka topic", "topic", s.cfg.Topic, "error", err)
		return err
	}
	s.topicReady.Store(true)
	return nil
}

func (s *Session) closeProducer(prod *producer) {
	prod.once.Do(func() {
		s.log.Info("closing kafka producer")

		close(prod.closedCh)
		<-prod.eventsDone
		<-prod.logsDone

		pending := prod.p.Flush(int(s.cfg.FlushTimeout.Milliseconds()))
		if pending > 0 {
			s.log.Warnf("flush incomplete, messages will be lost. pending: %d", pending)
		}

		prod.p.Close()
		s.log.Info("kafka producer closed")
	})
}

// drop clears prod if it is still the current producer and closes it.
func (s *Session) drop(prod *producer, reason error) {
	s.mu.Lock()
	cleared := s.prod == prod
	if cleared {
		s.prod = nil
	}
	s.mu.Unlock()

	s.log.Warnw("kafka producer unusable, dropping it", "error", reason, "cleared", cleared)
	go s.closeProducer(prod)
}

// produceWithRetry enqueues msg with librdkafka. A full local queue is
// retried after a short delay; every other error is returned.
func (s *Session) produceWithRetry(ctx context.Context, prod *producer, msg *kafka.Message, deliveryCh chan kafka.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := prod.p.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		var kafkaErr kafka.Error
		if !errors.As(err, &kafkaErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}

		switch kafkaErr.Code() {
		case kafka.ErrQueueFull:
			s.log.Warnf("producer queue full, retrying in %s", queueFullErrorRetryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queueFullErrorRetryDelay):
			}
			continue
		case kafka.ErrBrokerNotAvailable:
			return fmt.Errorf("broker not available: %w", err)
		case kafka.ErrInvalidMsgSize:
			return fmt.Errorf("invalid message size: %w", err)
		case kafka.ErrInvalidMsg:
			return fmt.Errorf("invalid message: %w", err)
		case kafka.ErrUnknownTopicOrPart:
			return fmt.Errorf("unknown topic or partition: %w", err)
		case kafka.ErrAuthentication:
			return fmt.Errorf("authentication error: %w", err)
		default:
			return fmt.Errorf("failed to produce: %w", err)
		}
	}
}

func (s *Session) printKafkaLogs(prod *producer) {
	defer close(prod.logsDone)
	for {
		select {
		case <-prod.closedCh:
			return
		case log, ok := <-prod.p.Logs():
			if !ok {
				return
			}
			s.log.Debugf("level: %d tag: %s message: %s", log.Level, log.Tag, log.Message)
		}
	}
}

func (s *Session) monitorProducerEvents(prod *producer) {
	defer close(prod.eventsDone)
	for {
		select {
		case <-prod.closedCh:
			return
		case ev, ok := <-prod.p.Events():
			if !ok {
				s.drop(prod, errors.New("kafka producer event channel closed"))
				return
			}

			switch e := ev.(type) {
			case *kafka.Message:
				// Delivery reports are routed to per-message channels.
				s.log.Warnw("unexpected delivery report on events channel", "topicPartition", e.TopicPartition)
			case kafka.Error:
				if e.IsFatal() || e.Code() == kafka.ErrAllBrokersDown {
					s.drop(prod, fmt.Errorf("fatal err or ErrAllBrokersDown: %#x, %w", e.Code(), e))
					return
				}
				s.log.Warnf("ignoring kafka error: %#x, %v", e.Code(), e)
			default:
				s.log.Debugf("kafka event: %v", e)
			}
		}
	}
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	e, ok := ev.(*kafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}
	if err := e.TopicPartition.Error; err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}

	log.Debugf(
		"delivered to topic [%s] partition [%d] at offset [%d]",
		*msg.TopicPartition.Topic,
		e.TopicPartition.Partition,
		e.TopicPartition.Offset,
	)
	return nil
}
