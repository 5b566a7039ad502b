package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ava-labs/event-publisher/pkg/session"
)

var (
	ErrNotConnected     = errors.New("nats: not connected")
	ErrConnectionFailed = errors.New("nats: connection failed")
	ErrPublishFailed    = errors.New("nats: publish failed")
)

// Session publishes to one NATS subject. Client-side reconnects are off so
// the connection monitor owns recovery, as with the other backends.
type Session struct {
	cfg     Config
	headers session.Headers
	log     *zap.SugaredLogger

	mu sync.Mutex
	nc *natsgo.Conn
}

var _ session.Session = (*Session)(nil)

func NewSession(cfg Config, headers session.Headers, log *zap.SugaredLogger) (*Session, error) {
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Session{cfg: cfg, headers: headers, log: log}, nil
}

func (s *Session) Connect(ctx context.Context) error {
	if s.IsReady() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := []natsgo.Option{
		natsgo.Name(s.cfg.Name),
		natsgo.Timeout(s.cfg.ConnectTimeout),
		natsgo.NoReconnect(),
		natsgo.DisconnectErrHandler(s.disconnected),
	}
	if s.cfg.Username != "" {
		opts = append(opts, natsgo.UserInfo(s.cfg.Username, s.cfg.Password))
	}

	nc, err := natsgo.Connect(s.cfg.URL, opts...)
	if err != nil {
		s.log.Errorw("failed to connect to nats", "url", s.cfg.URL, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s.mu.Lock()
	old := s.nc
	s.nc = nc
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	s.log.Infow("connected to nats", "url", nc.ConnectedUrlRedacted(), "subject", s.cfg.Subject())
	return nil
}

func (s *Session) IsReady() bool {
	nc := s.current()
	return nc != nil && nc.IsConnected()
}

func (s *Session) State() session.State {
	if s.IsReady() {
		return session.StateReady
	}
	return session.StateDisconnected
}

func (s *Session) Publish(ctx context.Context, msg session.Message) error {
	nc := s.current()
	if nc == nil || !nc.IsConnected() {
		return ErrNotConnected
	}

	if err := nc.PublishMsg(s.message(msg)); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if !s.cfg.Flush {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.FlushTimeout)
	defer cancel()
	if err := nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrPublishFailed, err)
	}
	return nil
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	nc := s.nc
	s.nc = nil
	s.mu.Unlock()

	if nc != nil {
		nc.Close()
		s.log.Infow("nats connection closed by application")
	}
}

func (s *Session) current() *natsgo.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nc
}

func (s *Session) message(msg session.Message) *natsgo.Msg {
	m := natsgo.NewMsg(s.cfg.Subject())
	m.Data = msg.Body
	for k, v := range s.headers.Strings() {
		m.Header.Set(k, v)
	}
	for k, v := range msg.Headers {
		m.Header.Set(k, v)
	}
	m.Header.Set("Content-Type", "application/json")
	if msg.ID != "" {
		m.Header.Set(natsgo.MsgIdHdr, msg.ID)
	}
	if msg.Type != "" {
		m.Header.Set("Type", msg.Type)
	}
	return m
}

// disconnected clears the connection only if it is still the current one.
func (s *Session) disconnected(nc *natsgo.Conn, err error) {
	s.mu.Lock()
	cleared := s.nc == nc
	if cleared {
		s.nc = nil
	}
	s.mu.Unlock()

	if err == nil {
		s.log.Infow("nats connection closed by application", "cleared", cleared)
		return
	}
	s.log.Warnw("nats connection closed unexpectedly", "error", err, "cleared", cleared)
}
