package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ava-labs/event-publisher/pkg/session"
)

// Session owns one AMQP connection and one channel on it.
//
// The mutex guards only the two handles. Dialing, opening channels, sending
// and closing all happen outside it, so a close notification that clears a
// handle mid-publish can only make the session observe "not ready".
type Session struct {
	cfg    Config
	dialer Dialer
	log    *zap.SugaredLogger

	mu   sync.Mutex
	conn Connection
	ch   Channel

	failures atomic.Int32
}

var _ session.Session = (*Session)(nil)

// NewSession creates a disconnected session. Call Connect to open it.
func NewSession(cfg Config, dialer Dialer, log *zap.SugaredLogger) (*Session, error) {
	if dialer == nil {
		return nil, errors.New("invalid dialer: must not be nil")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Session{cfg: cfg, dialer: dialer, log: log}, nil
}

// Connect opens the connection and a channel on it. It is a no-op when the
// session is already ready. When the connection is alive but the channel is
// gone, only the channel is reopened.
func (s *Session) Connect(ctx context.Context) error {
	conn, ch := s.handles()
	if conn != nil && !conn.IsClosed() {
		if ch != nil && !ch.IsClosed() {
			return nil
		}
		_, err := s.openChannel(conn)
		return err
	}

	uri, err := amqp.ParseURI(s.cfg.URI)
	if err != nil {
		s.log.Errorw("invalid broker uri", "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	username, password := uri.Username, uri.Password
	if s.cfg.Username != "" {
		username = s.cfg.Username
	}
	if s.cfg.Password != "" {
		password = s.cfg.Password
	}

	amqpCfg := amqp.Config{
		SASL:      []amqp.Authentication{&amqp.PlainAuth{Username: username, Password: password}},
		Vhost:     uri.Vhost,
		Heartbeat: s.cfg.Heartbeat,
		Locale:    "en_US",
		Properties: amqp.Table{
			"connection_name": s.cfg.Name,
		},
	}

	s.log.Infow("connecting to broker", "host", uri.Host, "port", uri.Port, "vhost", uri.Vhost, "username", username)
	conn, err = s.dialer.Dial(ctx, s.cfg.URI, amqpCfg)
	if err != nil {
		s.log.Errorw("failed to connect to broker", "host", uri.Host, "port", uri.Port, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s.mu.Lock()
	if s.conn != nil && !s.conn.IsClosed() {
		// A concurrent Connect won the race; keep its connection.
		existing := s.conn
		s.mu.Unlock()
		if err := conn.Close(); err != nil {
			s.log.Warnw("failed to close redundant connection", "error", err)
		}
		if _, err := s.openChannel(existing); err != nil && !errors.Is(err, ErrNotConnected) {
			return err
		}
		return nil
	}
	s.conn = conn
	s.ch = nil
	s.mu.Unlock()

	go s.watchConnection(conn, conn.NotifyClose(make(chan *amqp.Error, 1)))
	s.log.Infow("connection established", "host", uri.Host, "port", uri.Port)

	_, err = s.openChannel(conn)
	return err
}

// IsReady reports whether both the connection and the channel are open.
func (s *Session) IsReady() bool {
	return s.State() == session.StateReady
}

func (s *Session) State() session.State {
	conn, ch := s.handles()
	switch {
	case conn == nil || conn.IsClosed():
		return session.StateDisconnected
	case ch == nil || ch.IsClosed():
		return session.StateConnected
	default:
		return session.StateReady
	}
}

// Publish sends msg to the configured exchange. A missing or closed channel
// is reopened first; repeated failures to do so escalate to a disconnect.
func (s *Session) Publish(ctx context.Context, msg session.Message) error {
	ch, err := s.channel()
	if err != nil {
		return err
	}

	if err := ch.Publish(ctx, s.cfg.Exchange, s.cfg.RoutingKey, s.publishing(msg)); err != nil {
		s.log.Errorw("failed to publish message",
			"exchange", s.cfg.Exchange,
			"routingKey", s.cfg.RoutingKey,
			"messageID", msg.ID,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Disconnect closes the channel then the connection. Both handles are
// cleared before closing so the session reads as disconnected immediately,
// whether or not the closes succeed.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn, ch := s.conn, s.ch
	s.conn, s.ch = nil, nil
	s.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			s.log.Warnw("error closing channel", "error", err)
		}
	}
	if conn != nil {
		s.log.Info("disconnecting from broker")
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			s.log.Warnw("error closing connection", "error", err)
		}
	}
}

// Failures returns the current consecutive channel-open failure count.
func (s *Session) Failures() int {
	return int(s.failures.Load())
}

func (s *Session) handles() (Connection, Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn, s.ch
}

// channel returns an open channel, opening one when needed.
func (s *Session) channel() (Channel, error) {
	conn, ch := s.handles()
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}
	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return s.openChannel(conn)
}

func (s *Session) openChannel(conn Connection) (Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		n := int(s.failures.Add(1))
		s.log.Errorw("failed to open channel", "failures", n, "threshold", s.cfg.FailureThreshold, "error", err)
		if n > s.cfg.FailureThreshold {
			s.log.Warnw("channel failure threshold exceeded, disconnecting", "failures", n)
			s.failures.Store(0)
			s.Disconnect()
		}
		return nil, fmt.Errorf("%w: %w", ErrChannelUnavailable, err)
	}
	s.failures.Store(0)

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		ch.Close() //nolint:errcheck // connection already replaced or gone
		return nil, ErrNotConnected
	}
	if s.ch != nil && !s.ch.IsClosed() {
		existing := s.ch
		s.mu.Unlock()
		ch.Close() //nolint:errcheck // a concurrent open already installed a channel
		return existing, nil
	}
	s.ch = ch
	s.mu.Unlock()

	go s.watchChannel(ch, ch.NotifyClose(make(chan *amqp.Error, 1)))
	s.log.Info("channel opened")
	return ch, nil
}

// watchConnection clears the connection handle once the broker client
// reports it closed. A nil error means the application closed it.
func (s *Session) watchConnection(conn Connection, notify <-chan *amqp.Error) {
	cause := <-notify

	s.mu.Lock()
	cleared := s.conn == conn
	if cleared {
		s.conn = nil
		s.ch = nil
	}
	s.mu.Unlock()

	logClose(s.log, "connection", cause, cleared)
}

func (s *Session) watchChannel(ch Channel, notify <-chan *amqp.Error) {
	cause := <-notify

	s.mu.Lock()
	cleared := s.ch == ch
	if cleared {
		s.ch = nil
	}
	s.mu.Unlock()

	logClose(s.log, "channel", cause, cleared)
}

func logClose(log *zap.SugaredLogger, what string, cause *amqp.Error, cleared bool) {
	if cause == nil {
		log.Infow(what+" closed by application", "cleared", cleared)
		return
	}
	log.Warnw(what+" closed unexpectedly",
		"code", cause.Code,
		"reason", cause.Reason,
		"server", cause.Server,
		"recover", cause.Recover,
		"cleared", cleared,
	)
}
