package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ava-labs/event-publisher/pkg/session"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient overrides the parts of pahomqtt.Client the session uses.
type fakeClient struct {
	pahomqtt.Client

	opts       *pahomqtt.ClientOptions
	connectErr error
	publishTok pahomqtt.Token

	mu           sync.Mutex
	open         bool
	published    []publishCall
	disconnected int
}

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr == nil {
		c.open = true
	}
	return newToken(c.connectErr)
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishCall{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if c.publishTok != nil {
		return c.publishTok
	}
	return newToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.disconnected++
}

// lose simulates the broker dropping the connection.
func (c *fakeClient) lose(err error) {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
	c.opts.OnConnectionLost(c, err)
}

type fakeFactory struct {
	connectErr error
	clients    []*fakeClient
}

func (f *fakeFactory) New(opts *pahomqtt.ClientOptions) pahomqtt.Client {
	c := &fakeClient{opts: opts, connectErr: f.connectErr}
	f.clients = append(f.clients, c)
	return c
}

func (f *fakeFactory) last() *fakeClient {
	return f.clients[len(f.clients)-1]
}

func newTestSession(t *testing.T, log *zap.SugaredLogger) (*Session, *fakeFactory) {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t).Sugar()
	}
	f := &fakeFactory{}
	s, err := NewSession(Config{
		Name:       "review",
		Username:   "publisher",
		Password:   "secret",
		Exchange:   "events",
		RoutingKey: "gerrit",
		QoS:        1,
	}, f.New, log)
	require.NoError(t, err)
	return s, f
}

// ============================================================================
// Config Tests
// ============================================================================

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "valid", cfg: Config{Exchange: "events", QoS: 2}},
		{name: "missing exchange", cfg: Config{}, wantErr: "exchange"},
		{name: "qos out of range", cfg: Config{Exchange: "events", QoS: 3}, wantErr: "qos"},
		{name: "wildcard", cfg: Config{Exchange: "events", RoutingKey: "#"}, wantErr: "wildcards"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Topic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "events", Config{Exchange: "events"}.Topic())
	assert.Equal(t, "events/gerrit", Config{Exchange: "events", RoutingKey: "gerrit"}.Topic())
}

// ============================================================================
// Session Tests
// ============================================================================

func TestSession_Connect(t *testing.T) {
	t.Parallel()

	s, f := newTestSession(t, nil)
	require.Equal(t, session.StateDisconnected, s.State())

	require.NoError(t, s.Connect(context.Background()))
	require.True(t, s.IsReady())
	assert.Equal(t, session.StateReady, s.State())

	opts := f.last().opts
	assert.Equal(t, "review", opts.ClientID)
	assert.Equal(t, "publisher", opts.Username)
	assert.False(t, opts.AutoReconnect)
	assert.True(t, opts.CleanSession)

	require.NoError(t, s.Connect(context.Background()))
	assert.Len(t, f.clients, 1, "connect on a ready session must be a no-op")
}

func TestSession_ConnectFailure(t *testing.T) {
	t.Parallel()

	s, f := newTestSession(t, nil)
	f.connectErr = errors.New("connection refused")

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.False(t, s.IsReady())
}

func TestSession_Publish(t *testing.T) {
	t.Parallel()

	s, f := newTestSession(t, nil)
	require.NoError(t, s.Connect(context.Background()))

	require.NoError(t, s.Publish(context.Background(), session.Message{Body: []byte(`{"type":"x"}`)}))

	c := f.last()
	require.Len(t, c.published, 1)
	assert.Equal(t, "events/gerrit", c.published[0].topic)
	assert.Equal(t, byte(1), c.published[0].qos)
	assert.JSONEq(t, `{"type":"x"}`, string(c.published[0].payload))
}

func TestSession_PublishErrors(t *testing.T) {
	t.Parallel()

	t.Run("not connected", func(t *testing.T) {
		s, _ := newTestSession(t, nil)
		err := s.Publish(context.Background(), session.Message{Body: []byte(`{}`)})
		require.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("token error", func(t *testing.T) {
		s, f := newTestSession(t, nil)
		require.NoError(t, s.Connect(context.Background()))
		f.last().publishTok = newToken(errors.New("not connected"))

		err := s.Publish(context.Background(), session.Message{Body: []byte(`{}`)})
		require.ErrorIs(t, err, ErrPublishFailed)
	})

	t.Run("context deadline", func(t *testing.T) {
		s, f := newTestSession(t, nil)
		require.NoError(t, s.Connect(context.Background()))
		f.last().publishTok = pendingToken()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := s.Publish(ctx, session.Message{Body: []byte(`{}`)})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestSession_ConnectionLost(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	s, f := newTestSession(t, zap.New(core).Sugar())
	require.NoError(t, s.Connect(context.Background()))
	first := f.last()

	first.lose(errors.New("EOF"))
	assert.False(t, s.IsReady())
	require.Equal(t, 1, logs.FilterMessage("mqtt connection closed unexpectedly").Len())

	require.NoError(t, s.Connect(context.Background()))
	require.Len(t, f.clients, 2)

	// A late notification from the old client must not clear the new one.
	first.opts.OnConnectionLost(first, errors.New("late"))
	assert.True(t, s.IsReady())
}

func TestSession_Disconnect(t *testing.T) {
	t.Parallel()

	s, f := newTestSession(t, nil)
	require.NoError(t, s.Connect(context.Background()))

	s.Disconnect()
	s.Disconnect()

	assert.False(t, s.IsReady())
	assert.Equal(t, 1, f.last().disconnected)
}

func TestNewSession_RejectsNilLogger(t *testing.T) {
	t.Parallel()

	_, err := NewSession(Config{Exchange: "events"}, nil, nil)
	require.ErrorContains(t, err, "invalid logger")
}
