package session

import (
	"context"
	"time"
)

// Recorder receives session outcomes. *metrics.Publisher implements it.
type Recorder interface {
	ObserveConnect(err error)
	ObservePublish(d time.Duration, err error)
	SetReady(ready bool)
}

// InstrumentedSession wraps a Session with metrics collection.
type InstrumentedSession struct {
	next Session
	rec  Recorder
}

func NewInstrumentedSession(next Session, rec Recorder) *InstrumentedSession {
	return &InstrumentedSession{next: next, rec: rec}
}

func (s *InstrumentedSession) Connect(ctx context.Context) error {
	err := s.next.Connect(ctx)
	s.rec.ObserveConnect(err)
	s.rec.SetReady(s.next.IsReady())
	return err
}

func (s *InstrumentedSession) Publish(ctx context.Context, msg Message) error {
	start := time.Now()
	err := s.next.Publish(ctx, msg)
	s.rec.ObservePublish(time.Since(start), err)
	if err != nil {
		s.rec.SetReady(s.next.IsReady())
	}
	return err
}

func (s *InstrumentedSession) IsReady() bool {
	ready := s.next.IsReady()
	s.rec.SetReady(ready)
	return ready
}

func (s *InstrumentedSession) State() State { return s.next.State() }

func (s *InstrumentedSession) Disconnect() {
	s.next.Disconnect()
	s.rec.SetReady(false)
}
