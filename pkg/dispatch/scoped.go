package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/event-publisher/pkg/event"
)

const (
	DefaultResolveConcurrency = 4
	DefaultResolveTimeout     = 30 * time.Second
)

var (
	ErrInvalidLogger   = errors.New("invalid logger: must not be nil")
	ErrInvalidResolver = errors.New("invalid resolver: must not be nil")
)

type pendingReg struct {
	cancel context.CancelFunc
}

type registration struct {
	account string
	l       Listener
}

// Scoped delivers account-scoped events to the listeners registered for
// that account.
type Scoped struct {
	log      *zap.SugaredLogger
	resolver Resolver
	sem      *semaphore.Weighted
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	pending map[string]*pendingReg
	byName  map[string]registration
	// byAccount holds listener names per account.
	byAccount map[string]map[string]Listener
}

func NewScoped(resolver Resolver, concurrency int64, log *zap.SugaredLogger) (*Scoped, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if resolver == nil {
		return nil, ErrInvalidResolver
	}
	if concurrency <= 0 {
		concurrency = DefaultResolveConcurrency
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scoped{
		log:       log,
		resolver:  resolver,
		sem:       semaphore.NewWeighted(concurrency),
		timeout:   DefaultResolveTimeout,
		ctx:       ctx,
		cancel:    cancel,
		pending:   make(map[string]*pendingReg),
		byName:    make(map[string]registration),
		byAccount: make(map[string]map[string]Listener),
	}, nil
}

// Add resolves identity in the background and then registers l under name.
// It returns immediately. If the identity cannot be resolved the failure is
// logged and l is not registered.
func (s *Scoped) Add(name, identity string, l Listener) {
	s.Remove(name)

	ctx, cancel := context.WithCancel(s.ctx)
	p := &pendingReg{cancel: cancel}
	s.mu.Lock()
	s.pending[name] = p
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.resolve(ctx, p, name, identity, l)
	}()
}

func (s *Scoped) resolve(ctx context.Context, p *pendingReg, name, identity string, l Listener) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	account, err := s.resolver.Resolve(rctx, identity)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			s.log.Errorw("cannot resolve identity for publisher, not registering it",
				"publisher", name,
				"listenAs", identity,
				"error", err,
			)
		}
		s.mu.Lock()
		if s.pending[name] == p {
			delete(s.pending, name)
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Removed or replaced while resolving.
	if s.pending[name] != p {
		return
	}
	delete(s.pending, name)
	s.byName[name] = registration{account: account, l: l}
	if s.byAccount[account] == nil {
		s.byAccount[account] = make(map[string]Listener)
	}
	s.byAccount[account][name] = l
	s.log.Infow("listening for events as account", "publisher", name, "listenAs", identity, "account", account)
}

// Remove cancels a pending registration or drops an active one.
func (s *Scoped) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	if p, ok := s.pending[name]; ok {
		p.cancel()
		delete(s.pending, name)
		removed = true
	}
	if reg, ok := s.byName[name]; ok {
		delete(s.byName, name)
		delete(s.byAccount[reg.account], name)
		if len(s.byAccount[reg.account]) == 0 {
			delete(s.byAccount, reg.account)
		}
		removed = true
	}
	return removed
}

// Registered reports whether name has a resolved registration.
func (s *Scoped) Registered(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[name]
	return ok
}

// Wait blocks until every pending registration has finished or ctx is done.
func (s *Scoped) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch hands e to every listener registered for account and returns
// how many accepted it.
func (s *Scoped) Dispatch(account string, e event.Event) int {
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.byAccount[account]))
	for _, l := range s.byAccount[account] {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	accepted := 0
	for _, l := range listeners {
		if l.OnEvent(e) {
			accepted++
		}
	}
	return accepted
}

// Close cancels pending registrations, waits for them, and clears all
// registrations.
func (s *Scoped) Close() {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]*pendingReg)
	s.byName = make(map[string]registration)
	s.byAccount = make(map[string]map[string]Listener)
}

// DispatchAs resolves identity to its account and dispatches e to it.
func (s *Scoped) DispatchAs(ctx context.Context, identity string, e event.Event) (int, error) {
	account, err := s.resolver.Resolve(ctx, identity)
	if err != nil {
		return 0, err
	}
	return s.Dispatch(account, e), nil
}
