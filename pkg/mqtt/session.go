package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/ava-labs/event-publisher/pkg/session"
)

var (
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
)

// ClientFactory builds a paho client from options. Tests substitute it.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Session publishes to one MQTT topic.
//
// paho's own reconnect logic is disabled: a lost connection clears the
// client and the connection monitor decides when to reconnect. MQTT 3.1.1
// has no message headers, so only the body is sent.
type Session struct {
	cfg       Config
	newClient ClientFactory
	log       *zap.SugaredLogger

	mu     sync.Mutex
	client pahomqtt.Client
}

var _ session.Session = (*Session)(nil)

// NewSession returns a disconnected session. A nil factory uses paho's
// NewClient.
func NewSession(cfg Config, factory ClientFactory, log *zap.SugaredLogger) (*Session, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if factory == nil {
		factory = pahomqtt.NewClient
	}
	return &Session{cfg: cfg, newClient: factory, log: log}, nil
}

func (s *Session) Connect(ctx context.Context) error {
	if s.IsReady() {
		return nil
	}
	s.Disconnect()

	client := s.newClient(s.options())
	if err := wait(ctx, client.Connect()); err != nil {
		s.log.Errorw("failed to connect to mqtt broker", "broker", s.cfg.Broker, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s.mu.Lock()
	if s.client != nil {
		s.mu.Unlock()
		client.Disconnect(defaultDisconnectQuiesce)
		return nil
	}
	s.client = client
	s.mu.Unlock()

	s.log.Infow("connected to mqtt broker", "broker", s.cfg.Broker, "topic", s.cfg.Topic())
	return nil
}

func (s *Session) IsReady() bool {
	c := s.current()
	return c != nil && c.IsConnectionOpen()
}

func (s *Session) State() session.State {
	if s.IsReady() {
		return session.StateReady
	}
	return session.StateDisconnected
}

func (s *Session) Publish(ctx context.Context, msg session.Message) error {
	c := s.current()
	if c == nil || !c.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := wait(ctx, c.Publish(s.cfg.Topic(), s.cfg.QoS, s.cfg.Retained, msg.Body)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()

	if c != nil {
		c.Disconnect(defaultDisconnectQuiesce)
		s.log.Infow("mqtt connection closed by application")
	}
}

func (s *Session) current() pahomqtt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Session) options() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetConnectionLostHandler(s.connectionLost)
	return opts
}

// connectionLost clears the client only if it is still the current one.
func (s *Session) connectionLost(c pahomqtt.Client, err error) {
	s.mu.Lock()
	cleared := s.client == c
	if cleared {
		s.client = nil
	}
	s.mu.Unlock()

	s.log.Warnw("mqtt connection closed unexpectedly", "error", err, "cleared", cleared)
}

func wait(ctx context.Context, t pahomqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Done():
		return t.Error()
	}
}
