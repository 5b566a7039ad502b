package publisher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ava-labs/event-publisher/pkg/event"
	"github.com/ava-labs/event-publisher/pkg/queue"
	"github.com/ava-labs/event-publisher/pkg/session"
)

var (
	ErrInvalidLogger  = errors.New("invalid logger: must not be nil")
	ErrInvalidSession = errors.New("invalid session: must not be nil")
	ErrStopping       = errors.New("publisher is stopping")
	ErrLoopRunning    = errors.New("publisher loop from a previous run has not exited")
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithRecorder reports queue outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(p *Publisher) {
		if r != nil {
			p.rec = r
		}
	}
}

type Publisher struct {
	cfg   Config
	sess  session.Session
	queue *queue.Bounded[*envelope]
	log   *zap.SugaredLogger
	rec   Recorder

	// readyCh wakes the loop after a successful connect. Sends never block.
	readyCh chan struct{}

	// lifecycleMu serializes Start and Stop.
	lifecycleMu sync.Mutex

	mu          sync.Mutex // guards the fields below
	state       State
	ctx         context.Context
	cancel      context.CancelFunc
	loopDone    chan struct{}
	monitorDone chan struct{}

	running   atomic.Bool
	loopAlive atomic.Bool
}

// New builds a stopped publisher. Its queue exists from construction, so
// events offered before Start are kept and published once it runs.
func New(cfg Config, sess session.Session, log *zap.SugaredLogger, opts ...Option) (*Publisher, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if sess == nil {
		return nil, ErrInvalidSession
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log = log.With("publisher", cfg.Name)
	q, err := queue.New[*envelope](cfg.QueueCapacity, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event queue: %w", err)
	}

	p := &Publisher{
		cfg:     cfg,
		sess:    sess,
		queue:   q,
		log:     log,
		rec:     nopRecorder{},
		readyCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Publisher) Name() string { return p.cfg.Name }

func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsReady reports whether the session can publish right now.
func (p *Publisher) IsReady() bool { return p.sess.IsReady() }

// QueueLen returns the number of events waiting to be published.
func (p *Publisher) QueueLen() int { return p.queue.Len() }

// Dropped returns the number of events rejected because the queue was full.
func (p *Publisher) Dropped() uint64 { return p.queue.Lost() }

// OnEvent queues e for publishing and reports whether it was accepted. It
// is safe for concurrent use and never blocks. If the publisher is running
// but its loop has died, the loop is restarted.
func (p *Publisher) OnEvent(e event.Event) bool {
	if e == nil {
		return false
	}

	env := &envelope{id: uuid.NewString(), event: e, acceptedAt: time.Now()}
	if !p.queue.Offer(env) {
		p.rec.EventDropped()
		return false
	}
	p.rec.EventReceived()
	p.rec.SetQueueDepth(p.queue.Len())

	if p.running.Load() && !p.loopAlive.Load() {
		p.restartLoop()
	}
	return true
}

// Start ensures the loop is running. If the session is not ready it
// connects once and arms the connection monitor, which keeps reconnecting
// until Stop. A failed initial connect is logged, not returned.
//
// ctx bounds the initial connect only; the background tasks live until Stop.
// If a loop left behind by a timed-out Stop is still alive, Start waits up
// to the shutdown timeout for it and returns ErrLoopRunning if it stays.
func (p *Publisher) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	p.mu.Lock()
	switch p.state {
	case StateStopping:
		p.mu.Unlock()
		return ErrStopping
	case StateRunning:
		if !p.loopAlive.Load() {
			p.startLoopLocked()
		}
		p.mu.Unlock()
		return nil
	}
	if prev := p.loopDone; prev != nil && p.loopAlive.Load() {
		p.mu.Unlock()
		if !p.await("previous publisher loop", prev) {
			return ErrLoopRunning
		}
		p.mu.Lock()
	}
	p.state = StateStarting
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	lifetime := p.ctx
	p.startLoopLocked()
	p.mu.Unlock()

	armMonitor := !p.sess.IsReady()
	if armMonitor {
		p.connect(ctx)
	}

	p.mu.Lock()
	if armMonitor {
		done := make(chan struct{})
		p.monitorDone = done
		go p.monitor(lifetime, done)
	}
	p.state = StateRunning
	p.running.Store(true)
	p.mu.Unlock()

	p.log.Infow("publisher started",
		"queueCapacity", p.queue.Cap(),
		"queued", p.queue.Len(),
		"ready", p.sess.IsReady(),
	)
	return nil
}

// Stop cancels the monitor and the loop, waits for each up to the shutdown
// timeout, and then disconnects the session whether or not they exited.
func (p *Publisher) Stop() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateStopping
	p.running.Store(false)
	cancel, loopDone, monitorDone := p.cancel, p.loopDone, p.monitorDone
	p.mu.Unlock()

	cancel()
	p.await("connection monitor", monitorDone)
	p.await("publisher loop", loopDone)
	p.sess.Disconnect()

	if n := p.queue.Len(); n > 0 {
		p.log.Warnw("publisher stopped with events still queued", "queued", n)
	}

	// loopDone is kept: a loop that outlived the timeout must exit before
	// the next Start spawns another.
	p.mu.Lock()
	p.state = StateStopped
	p.monitorDone = nil
	p.mu.Unlock()

	p.log.Info("publisher stopped")
}

// await reports whether done closed within the shutdown timeout.
func (p *Publisher) await(task string, done <-chan struct{}) bool {
	if done == nil {
		return true
	}
	timer := time.NewTimer(p.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		p.log.Warnw("timed out waiting for task to stop", "task", task, "timeout", p.cfg.ShutdownTimeout)
		return false
	}
}

func (p *Publisher) restartLoop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || p.loopAlive.Load() {
		return
	}
	p.log.Warn("publisher loop is not running, restarting it")
	p.startLoopLocked()
}

func (p *Publisher) startLoopLocked() {
	done := make(chan struct{})
	p.loopDone = done
	p.loopAlive.Store(true)
	go p.run(p.ctx, done)
}

// run is the publishing loop. It exits when ctx is done.
func (p *Publisher) run(ctx context.Context, done chan struct{}) {
	var held *envelope
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("publisher loop panicked", "panic", r, "stack", string(debug.Stack()))
			if held != nil {
				// Not requeued: the same event would panic again.
				p.rec.EventLost()
				p.log.Errorw("event lost: publisher loop panicked while handling it",
					"id", held.id,
					"type", held.event.EventType(),
				)
			}
		}

		p.mu.Lock()
		if p.loopDone == done {
			p.loopAlive.Store(false)
		}
		p.mu.Unlock()
		close(done)
	}()

	for {
		env, ok := p.queue.Take(ctx)
		if !ok {
			return
		}
		held = env
		p.rec.SetQueueDepth(p.queue.Len())

		if !p.waitReady(ctx) {
			p.requeue(env)
			return
		}
		p.publish(ctx, env)
		held = nil
	}
}

// waitReady blocks until the session is ready or ctx is done, waking on
// every successful connect and at least once per ReadyWait. A session that
// is connected but has lost its channel is reconnected here on every wake,
// so a channel-only close does not wait for the next monitor tick.
func (p *Publisher) waitReady(ctx context.Context) bool {
	for !p.sess.IsReady() {
		if p.sess.State() == session.StateConnected && p.connect(ctx) {
			continue
		}
		timer := time.NewTimer(p.cfg.ReadyWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-p.readyCh:
		case <-timer.C:
		}
		timer.Stop()
	}
	return ctx.Err() == nil
}

func (p *Publisher) publish(ctx context.Context, env *envelope) {
	body, err := env.payload()
	if err != nil {
		p.rec.EventLost()
		p.log.Errorw("failed to serialize event, dropping it",
			"id", env.id,
			"type", env.event.EventType(),
			"error", err,
		)
		return
	}

	err = p.sess.Publish(ctx, session.Message{
		ID:        env.id,
		Type:      env.event.EventType(),
		Body:      body,
		Timestamp: time.Now(),
	})
	if err == nil {
		return
	}
	if ctx.Err() == nil {
		p.log.Warnw("failed to publish event, requeueing it",
			"id", env.id,
			"type", env.event.EventType(),
			"error", err,
		)
	}
	p.requeue(env)
}

// requeue pushes env to the back of the queue. If the queue is full the
// event is lost and logged with its payload.
func (p *Publisher) requeue(env *envelope) {
	if p.queue.Requeue(env) {
		p.rec.EventRequeued()
		p.rec.SetQueueDepth(p.queue.Len())
		return
	}

	p.rec.EventLost()
	body, _ := env.payload()
	p.log.Errorw("event lost: could not requeue after failed publish, queue is full",
		"id", env.id,
		"type", env.event.EventType(),
		"acceptedAt", env.acceptedAt,
		"payload", string(body),
	)
}
