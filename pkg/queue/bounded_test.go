package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestQueue[T any](t *testing.T, capacity int, opts ...Option) *Bounded[T] {
	t.Helper()
	q, err := New[T](capacity, zaptest.NewLogger(t).Sugar(), opts...)
	require.NoError(t, err)
	return q
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	log := zap.NewNop().Sugar()
	tests := []struct {
		name        string
		capacity    int
		log         *zap.SugaredLogger
		errContains string
	}{
		{name: "zero capacity", capacity: 0, log: log, errContains: "invalid capacity"},
		{name: "negative capacity", capacity: -1, log: log, errContains: "invalid capacity"},
		{name: "nil logger", capacity: 1, log: nil, errContains: "invalid logger"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New[int](tt.capacity, tt.log)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestNew_Capacity(t *testing.T) {
	t.Parallel()

	q := newTestQueue[int](t, DefaultCapacity)
	assert.Equal(t, DefaultCapacity, q.Cap())
	assert.Equal(t, 0, q.Len())
}

// ============================================================================
// Offer / overflow
// ============================================================================

func TestOffer_AcceptsExactlyCapacity(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ capacity, offers int }{{1, 5}, {2, 3}, {7, 100}} {
		q := newTestQueue[int](t, tc.capacity)
		accepted := 0
		for i := 0; i < tc.offers; i++ {
			if q.Offer(i) {
				accepted++
			}
		}
		assert.Equal(t, tc.capacity, accepted)
		assert.Equal(t, tc.capacity, q.Len())
		assert.Equal(t, uint64(tc.offers-tc.capacity), q.Lost())
	}
}

func TestOffer_RejectsNewestKeepsOldest(t *testing.T) {
	t.Parallel()

	q := newTestQueue[string](t, 2)
	require.True(t, q.Offer("A"))
	require.True(t, q.Offer("B"))
	require.False(t, q.Offer("C"))
	assert.Equal(t, uint64(1), q.Lost())

	first, ok := q.TryTake()
	require.True(t, ok)
	second, ok := q.TryTake()
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B"}, []string{first, second})

	_, ok = q.TryTake()
	assert.False(t, ok)
}

func TestOffer_NeverBlocksWhenFull(t *testing.T) {
	t.Parallel()

	q := newTestQueue[int](t, 1)
	require.True(t, q.Offer(0))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			q.Offer(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Offer blocked on a full queue")
	}
	assert.Equal(t, 1, q.Len())
}

func TestOffer_ConcurrentProducers(t *testing.T) {
	t.Parallel()

	const producers, perProducer, capacity = 8, 200, 500
	q := newTestQueue[int](t, capacity)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Offer(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, q.Len())
	assert.Equal(t, uint64(producers*perProducer-capacity), q.Lost())
}

// ============================================================================
// Loss streak reporting
// ============================================================================

func TestOffer_LossStreakReporting(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zap.WarnLevel)
	q, err := New[int](1, zap.New(core).Sugar(), WithReportEvery(10))
	require.NoError(t, err)

	require.True(t, q.Offer(0))
	for i := 0; i < 21; i++ {
		require.False(t, q.Offer(i))
	}
	assert.Equal(t, uint64(21), q.Streak())

	// Rejections 1, 11 and 21 are reported.
	drops := recorded.FilterMessage("event queue full, dropping event").All()
	require.Len(t, drops, 3)
	assert.Equal(t, uint64(1), drops[0].ContextMap()["streak"])
	assert.Equal(t, uint64(11), drops[1].ContextMap()["streak"])
	assert.Equal(t, uint64(21), drops[2].ContextMap()["streak"])

	_, ok := q.TryTake()
	require.True(t, ok)
	require.True(t, q.Offer(1))
	assert.Equal(t, uint64(0), q.Streak())
	assert.Equal(t, uint64(21), q.Lost())

	recovered := recorded.FilterMessage("event queue accepting events again").All()
	require.Len(t, recovered, 1)
	assert.Equal(t, uint64(21), recovered[0].ContextMap()["dropped"])
}

func TestOffer_NoSummaryWithoutStreak(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zap.WarnLevel)
	q, err := New[int](4, zap.New(core).Sugar())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		require.True(t, q.Offer(i))
	}
	assert.Zero(t, recorded.Len())
}

// ============================================================================
// Requeue
// ============================================================================

func TestRequeue_AppendsAtTail(t *testing.T) {
	t.Parallel()

	q := newTestQueue[string](t, 3)
	require.True(t, q.Offer("A"))
	require.True(t, q.Offer("B"))

	head, ok := q.TryTake()
	require.True(t, ok)
	require.Equal(t, "A", head)

	require.True(t, q.Requeue(head))

	var order []string
	for {
		v, ok := q.TryTake()
		if !ok {
			break
		}
		order = append(order, v)
	}
	assert.Equal(t, []string{"B", "A"}, order)
}

func TestRequeue_FullDoesNotTouchStreak(t *testing.T) {
	t.Parallel()

	q := newTestQueue[int](t, 1)
	require.True(t, q.Offer(1))
	assert.False(t, q.Requeue(2))
	assert.Equal(t, uint64(0), q.Lost())
	assert.Equal(t, uint64(0), q.Streak())
}

// ============================================================================
// Take
// ============================================================================

func TestTake_BlocksUntilItem(t *testing.T) {
	t.Parallel()

	q := newTestQueue[int](t, 1)
	got := make(chan int, 1)
	go func() {
		v, ok := q.Take(context.Background())
		if ok {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.Offer(42))

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("Take did not return after Offer")
	}
}

func TestTake_ReturnsOnCancel(t *testing.T) {
	t.Parallel()

	q := newTestQueue[int](t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Take(ctx)
		done <- ok
	}()

	cancel()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Take did not observe cancellation")
	}
}
