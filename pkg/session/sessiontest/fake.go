// Package sessiontest provides a scriptable in-memory session.Session for
// exercising publishers without a broker.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/ava-labs/event-publisher/pkg/session"
)

var ErrInjected = errors.New("sessiontest: injected failure")

// Fake records published messages and lets tests script connect and publish
// outcomes. The zero value is a disconnected session whose Connect succeeds.
type Fake struct {
	mu          sync.Mutex
	ready       bool
	connectErr  error
	publishErrs []error
	published   []session.Message
	connects    int
	disconnects int
	attempts    int
}

// NewFake returns a disconnected fake.
func NewFake() *Fake {
	return &Fake{}
}

// SetReady flips readiness without going through Connect, as a broker-side
// event would.
func (f *Fake) SetReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// FailConnect makes every subsequent Connect return err. Pass nil to clear.
func (f *Fake) FailConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// FailNextPublishes queues errors returned by the next publishes, in order.
func (f *Fake) FailNextPublishes(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishErrs = append(f.publishErrs, errs...)
}

func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.ready {
		return nil
	}
	if f.connectErr != nil {
		return f.connectErr
	}
	f.ready = true
	return nil
}

func (f *Fake) IsReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *Fake) State() session.State {
	if f.IsReady() {
		return session.StateReady
	}
	return session.StateDisconnected
}

func (f *Fake) Publish(_ context.Context, msg session.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if !f.ready {
		return ErrInjected
	}
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.ready = false
}

// Published returns a copy of every successfully published message.
func (f *Fake) Published() []session.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]session.Message, len(f.published))
	copy(out, f.published)
	return out
}

// Connects returns the number of Connect calls.
func (f *Fake) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// Disconnects returns the number of Disconnect calls.
func (f *Fake) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// PublishAttempts returns the number of Publish calls, successful or not.
func (f *Fake) PublishAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}
