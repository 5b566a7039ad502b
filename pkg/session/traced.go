package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracedSession wraps a Session with distributed tracing.
// Layer order: TracedSession -> InstrumentedSession -> broker session.
type TracedSession struct {
	next   Session
	tracer trace.Tracer
	name   string
}

// NewTracedSession wraps next so Connect and Publish each produce a span.
// Publish also injects the span context into the message headers so
// consumers can continue the trace.
func NewTracedSession(next Session, tracer trace.Tracer, name string) *TracedSession {
	return &TracedSession{next: next, tracer: tracer, name: name}
}

func (s *TracedSession) Connect(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "session.connect",
		trace.WithAttributes(attribute.String("publisher.name", s.name)),
	)
	defer span.End()

	err := s.next.Connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (s *TracedSession) Publish(ctx context.Context, msg Message) error {
	ctx, span := s.tracer.Start(ctx, "session.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("publisher.name", s.name),
			attribute.String("event.type", msg.Type),
			attribute.String("message.id", msg.ID),
			attribute.Int("message.size", len(msg.Body)),
		),
	)
	defer span.End()

	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
	msg.Headers = headers

	err := s.next.Publish(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (s *TracedSession) IsReady() bool { return s.next.IsReady() }

func (s *TracedSession) State() State { return s.next.State() }

func (s *TracedSession) Disconnect() { s.next.Disconnect() }
