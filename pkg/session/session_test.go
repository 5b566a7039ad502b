package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// mockSession implements Session using testify's mock.
type mockSession struct {
	mock.Mock
}

func (m *mockSession) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSession) IsReady() bool {
	return m.Called().Bool(0)
}

func (m *mockSession) State() State {
	return m.Called().Get(0).(State)
}

func (m *mockSession) Publish(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockSession) Disconnect() {
	m.Called()
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) ObserveConnect(err error) {
	m.Called(err)
}

func (m *mockRecorder) ObservePublish(d time.Duration, err error) {
	m.Called(d, err)
}

func (m *mockRecorder) SetReady(ready bool) {
	m.Called(ready)
}

// ============================================================================
// State / Headers
// ============================================================================

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestHeaders_TypedSetters(t *testing.T) {
	t.Parallel()

	h := Headers{}.
		String("source-name", "review").
		String("source-version", "").
		Int("source-port", 8080).
		Int("unset-port", 0).
		Int64("epoch", 1700000000000).
		Bool("replica", false)

	assert.Equal(t, Headers{
		"source-name": "review",
		"source-port": int32(8080),
		"epoch":       int64(1700000000000),
		"replica":     false,
	}, h)

	assert.Equal(t, map[string]string{
		"source-name": "review",
		"source-port": "8080",
		"epoch":       "1700000000000",
		"replica":     "false",
	}, h.Strings())
}

func TestHeaders_Merge(t *testing.T) {
	t.Parallel()

	h := Headers{}.String("source-name", "review").Int("source-port", 29418)
	merged := h.Merge(map[string]string{"traceparent": "00-abc-def-01", "source-name": "override"})

	assert.Equal(t, map[string]any{
		"source-name": "override",
		"source-port": int32(29418),
		"traceparent": "00-abc-def-01",
	}, merged)
	assert.Equal(t, "review", h["source-name"], "merge must not mutate the configured headers")
}

// ============================================================================
// TracedSession
// ============================================================================

func newRecordingTracer(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp
}

func TestTracedSession_PublishInjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	rec, tp := newRecordingTracer(t)
	next := &mockSession{}
	next.On("Publish", mock.Anything, mock.MatchedBy(func(m Message) bool {
		return m.Headers["traceparent"] != "" && m.Headers["x-origin"] == "ingest"
	})).Return(nil).Once()

	s := NewTracedSession(next, tp.Tracer("test"), "site-a")
	msg := Message{ID: "id-1", Type: "ref-updated", Body: []byte(`{}`), Headers: map[string]string{"x-origin": "ingest"}}
	require.NoError(t, s.Publish(context.Background(), msg))

	next.AssertExpectations(t)
	_, injected := msg.Headers["traceparent"]
	assert.False(t, injected, "caller headers must not be mutated")

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "session.publish", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestTracedSession_ConnectRecordsError(t *testing.T) {
	t.Parallel()

	rec, tp := newRecordingTracer(t)
	next := &mockSession{}
	next.On("Connect", mock.Anything).Return(errors.New("dial tcp: refused")).Once()

	s := NewTracedSession(next, tp.Tracer("test"), "site-a")
	require.Error(t, s.Connect(context.Background()))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "session.connect", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestTracedSession_Delegates(t *testing.T) {
	t.Parallel()

	_, tp := newRecordingTracer(t)
	next := &mockSession{}
	next.On("IsReady").Return(true).Once()
	next.On("State").Return(StateReady).Once()
	next.On("Disconnect").Once()

	s := NewTracedSession(next, tp.Tracer("test"), "site-a")
	assert.True(t, s.IsReady())
	assert.Equal(t, StateReady, s.State())
	s.Disconnect()

	next.AssertExpectations(t)
}

// ============================================================================
// InstrumentedSession
// ============================================================================

func TestInstrumentedSession_Connect(t *testing.T) {
	t.Parallel()

	next := &mockSession{}
	next.On("Connect", mock.Anything).Return(nil).Once()
	next.On("IsReady").Return(true).Once()

	rec := &mockRecorder{}
	rec.On("ObserveConnect", nil).Once()
	rec.On("SetReady", true).Once()

	s := NewInstrumentedSession(next, rec)
	require.NoError(t, s.Connect(context.Background()))

	next.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestInstrumentedSession_PublishFailure(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("channel closed")
	next := &mockSession{}
	next.On("Publish", mock.Anything, mock.Anything).Return(sendErr).Once()
	next.On("IsReady").Return(false).Once()

	rec := &mockRecorder{}
	rec.On("ObservePublish", mock.AnythingOfType("time.Duration"), sendErr).Once()
	rec.On("SetReady", false).Once()

	s := NewInstrumentedSession(next, rec)
	require.ErrorIs(t, s.Publish(context.Background(), Message{ID: "1"}), sendErr)

	next.AssertExpectations(t)
	rec.AssertExpectations(t)
}

func TestInstrumentedSession_Disconnect(t *testing.T) {
	t.Parallel()

	next := &mockSession{}
	next.On("Disconnect").Once()
	rec := &mockRecorder{}
	rec.On("SetReady", false).Once()

	NewInstrumentedSession(next, rec).Disconnect()

	next.AssertExpectations(t)
	rec.AssertExpectations(t)
}
