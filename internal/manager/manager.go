// Package manager runs one publisher per configured site and routes
// inbound events to them.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/event-publisher/pkg/config"
	"github.com/ava-labs/event-publisher/pkg/dispatch"
	"github.com/ava-labs/event-publisher/pkg/event"
	"github.com/ava-labs/event-publisher/pkg/metrics"
	"github.com/ava-labs/event-publisher/pkg/publisher"
	"github.com/ava-labs/event-publisher/pkg/session"
)

var (
	ErrInvalidLogger   = errors.New("invalid logger: must not be nil")
	ErrInvalidResolver = errors.New("invalid resolver: must not be nil")
	ErrAlreadyStarted  = errors.New("manager already started")
)

type Option func(*Manager)

// WithMetrics records per-publisher metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// WithTracer wraps every session with tracing spans.
func WithTracer(t trace.Tracer) Option {
	return func(mgr *Manager) { mgr.tracer = t }
}

// WithSessionFactory replaces NewBrokerSession.
func WithSessionFactory(f SessionFactory) Option {
	return func(mgr *Manager) {
		if f != nil {
			mgr.newSession = f
		}
	}
}

type managed struct {
	site config.Site
	pub  *publisher.Publisher
}

type Manager struct {
	log        *zap.SugaredLogger
	fanout     *dispatch.Fanout
	scoped     *dispatch.Scoped
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	newSession SessionFactory

	mu         sync.Mutex
	publishers []managed
}

func New(log *zap.SugaredLogger, resolver dispatch.Resolver, opts ...Option) (*Manager, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if resolver == nil {
		return nil, ErrInvalidResolver
	}
	scoped, err := dispatch.NewScoped(resolver, dispatch.DefaultResolveConcurrency, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create scoped dispatcher: %w", err)
	}

	m := &Manager{
		log:        log,
		fanout:     dispatch.NewFanout(),
		scoped:     scoped,
		newSession: NewBrokerSession,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start builds a publisher for every site, starts them concurrently and
// registers each with its dispatcher. A site whose session cannot be built
// fails Start before anything is started.
func (m *Manager) Start(ctx context.Context, sites []config.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.publishers) > 0 {
		return ErrAlreadyStarted
	}

	built := make([]managed, 0, len(sites))
	for _, site := range sites {
		p, err := m.build(site)
		if err != nil {
			return fmt.Errorf("site %q: %w", site.Name, err)
		}
		built = append(built, managed{site: site, pub: p})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, mp := range built {
		g.Go(func() error {
			if err := mp.pub.Start(gctx); err != nil {
				return fmt.Errorf("failed to start publisher %q: %w", mp.site.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, mp := range built {
			mp.pub.Stop()
		}
		return err
	}

	for _, mp := range built {
		if listenAs := mp.site.Source.ListenAs; listenAs != "" {
			m.scoped.Add(mp.site.Name, listenAs, mp.pub)
		} else {
			m.fanout.Add(mp.site.Name, mp.pub)
		}
	}
	m.publishers = built

	m.log.Infow("publishers started", "count", len(built))
	return nil
}

func (m *Manager) build(site config.Site) (*publisher.Publisher, error) {
	log := m.log.Named(site.Name)

	sess, err := m.newSession(site, log)
	if err != nil {
		return nil, err
	}
	rec := m.metrics.For(site.Name)
	sess = session.NewInstrumentedSession(sess, rec)
	if m.tracer != nil {
		sess = session.NewTracedSession(sess, m.tracer, site.Name)
	}

	return publisher.New(publisher.Config{
		Name:            site.Name,
		QueueCapacity:   site.Queue.Capacity,
		StartupDelay:    site.Publisher.StartupDelay,
		MonitorInterval: site.Monitor.Interval,
		ReadyWait:       site.Publisher.ReadyWait,
		ShutdownTimeout: site.Publisher.ShutdownTimeout,
	}, sess, log, publisher.WithRecorder(rec))
}

// Stop unregisters and stops every publisher. Publishers stop concurrently.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mp := range m.publishers {
		if mp.site.Source.ListenAs != "" {
			m.scoped.Remove(mp.site.Name)
		} else {
			m.fanout.Remove(mp.site.Name)
		}
	}

	var g errgroup.Group
	for _, mp := range m.publishers {
		g.Go(func() error {
			mp.pub.Stop()
			m.metrics.Remove(mp.site.Name)
			return nil
		})
	}
	_ = g.Wait()

	if n := len(m.publishers); n > 0 {
		m.log.Infow("publishers stopped", "count", n)
	}
	m.publishers = nil
}

// Close stops every publisher and releases the scoped dispatcher.
func (m *Manager) Close() {
	m.Stop()
	m.scoped.Close()
}

// Dispatch hands e to every publisher without a listenAs identity.
func (m *Manager) Dispatch(e event.Event) int {
	return m.fanout.Dispatch(e)
}

// DispatchAs resolves identity and hands e to the publishers listening as it.
func (m *Manager) DispatchAs(ctx context.Context, identity string, e event.Event) (int, error) {
	return m.scoped.DispatchAs(ctx, identity, e)
}

// WaitRegistered blocks until every pending listenAs registration finished.
func (m *Manager) WaitRegistered(ctx context.Context) error {
	return m.scoped.Wait(ctx)
}

// Publishers returns the running publishers.
func (m *Manager) Publishers() []*publisher.Publisher {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*publisher.Publisher, 0, len(m.publishers))
	for _, mp := range m.publishers {
		out = append(out, mp.pub)
	}
	return out
}

// Ready reports whether at least one publisher runs and all of them can
// publish.
func (m *Manager) Ready() bool {
	pubs := m.Publishers()
	if len(pubs) == 0 {
		return false
	}
	for _, p := range pubs {
		if !p.IsReady() {
			return false
		}
	}
	return true
}
