package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	// DefaultCapacity is the default number of buffered items.
	DefaultCapacity = 16384

	// DefaultReportEvery is how often a loss streak is reported.
	DefaultReportEvery = 10
)

// Bounded is a fixed-capacity FIFO safe for concurrent producers and a single
// consumer. The zero value is not usable; create one with New.
type Bounded[T any] struct {
	items       chan T
	log         *zap.SugaredLogger
	reportEvery uint64

	mu     sync.Mutex // guards streak
	streak uint64

	lost atomic.Uint64
}

// Option configures a Bounded queue.
type Option func(*options)

type options struct {
	reportEvery uint64
}

// WithReportEvery sets how many rejections within one loss streak pass
// between warnings. Values below 1 are ignored.
func WithReportEvery(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.reportEvery = uint64(n)
		}
	}
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int, log *zap.SugaredLogger, opts ...Option) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, errors.New("invalid capacity: must be > 0")
	}
	if log == nil {
		return nil, errors.New("invalid logger: must not be nil")
	}

	o := options{reportEvery: DefaultReportEvery}
	for _, opt := range opts {
		opt(&o)
	}

	return &Bounded[T]{
		items:       make(chan T, capacity),
		log:         log,
		reportEvery: o.reportEvery,
	}, nil
}

// Offer appends item if there is room and reports whether it was accepted.
// It never blocks.
func (q *Bounded[T]) Offer(item T) bool {
	select {
	case q.items <- item:
		q.endStreak()
		return true
	default:
		q.recordLoss()
		return false
	}
}

// Requeue appends item at the tail if there is room. Unlike Offer it does not
// take part in loss streak accounting; the caller owns reporting the loss.
func (q *Bounded[T]) Requeue(item T) bool {
	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

// Take removes and returns the head of the queue, blocking until an item is
// available. It returns false once ctx is done.
func (q *Bounded[T]) Take(ctx context.Context) (T, bool) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, false
	case item := <-q.items:
		return item, true
	}
}

// TryTake removes and returns the head of the queue without blocking.
func (q *Bounded[T]) TryTake() (T, bool) {
	select {
	case item := <-q.items:
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered items.
func (q *Bounded[T]) Len() int { return len(q.items) }

// Cap returns the capacity fixed at construction.
func (q *Bounded[T]) Cap() int { return cap(q.items) }

// Lost returns the total number of items rejected by Offer.
func (q *Bounded[T]) Lost() uint64 { return q.lost.Load() }

// Streak returns the number of rejections in the current loss streak.
func (q *Bounded[T]) Streak() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.streak
}

func (q *Bounded[T]) recordLoss() {
	total := q.lost.Add(1)

	q.mu.Lock()
	q.streak++
	n := q.streak
	q.mu.Unlock()

	if (n-1)%q.reportEvery == 0 {
		q.log.Warnw("event queue full, dropping event",
			"streak", n,
			"totalLost", total,
			"capacity", cap(q.items),
		)
	}
}

func (q *Bounded[T]) endStreak() {
	q.mu.Lock()
	n := q.streak
	q.streak = 0
	q.mu.Unlock()

	if n > 0 {
		q.log.Warnw("event queue accepting events again",
			"dropped", n,
			"totalLost", q.lost.Load(),
		)
	}
}
