package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hadronized/demo-05/metric"
)

func TestPoolProcessesWork(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 16, func(_ context.Context, n int) error {
		processed.Add(int64(n))
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))

	for i := 1; i <= 5; i++ {
		require.NoError(t, pool.Submit(i))
	}

	require.NoError(t, pool.Stop(time.Second))
	assert.Equal(t, int64(15), processed.Load())

	stats := pool.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestPoolSubmitBeforeStart(t *testing.T) {
	pool := NewPool(1, 1, func(context.Context, int) error { return nil })
	assert.ErrorIs(t, pool.Submit(1), ErrPoolNotStarted)
}

func TestPoolDoubleStart(t *testing.T) {
	pool := NewPool(1, 1, func(context.Context, int) error { return nil })
	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPoolQueueFullDropsWork(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, func(_ context.Context, _ int) error {
		<-release
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	// First item occupies the single worker, second fills the queue. Submitting
	// until ErrQueueFull avoids racing worker pickup.
	var sawFull bool
	for i := 0; i < 8; i++ {
		if err := pool.Submit(i); errors.Is(err, ErrQueueFull) {
			sawFull = true
			break
		}
	}
	assert.True(t, sawFull, "expected a drop once queue saturated")
	assert.Greater(t, pool.Stats().Dropped, int64(0))

	close(release)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPoolCountsFailures(t *testing.T) {
	boom := errors.New("decode failed")
	pool := NewPool(1, 4, func(context.Context, int) error { return boom })
	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(1))
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestPoolNilProcessorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPool[int](1, 1, nil)
	})
}

func TestPoolWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 4,
		func(context.Context, string) error { return nil },
		WithMetricsRegistry[string](registry, "entity_loads"),
	)

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit("level.obj"))
	require.NoError(t, pool.Stop(time.Second))

	fams, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range fams {
		if f.GetName() == "entity_loads_submitted_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPoolSubmitRacingStop(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var resubmitErr error

	var pool *Pool[int]
	pool = NewPool(1, 4, func(_ context.Context, n int) error {
		if n == 0 {
			close(entered)
			<-release
			// The worker feeding back into its own queue must not block
			// the drain or hit the closed channel.
			resubmitErr = pool.Submit(1)
		}
		return nil
	})

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(0))
	<-entered

	stopErr := make(chan error, 1)
	go func() { stopErr <- pool.Stop(2 * time.Second) }()

	// Once Stop has marked the pool, outside submitters are turned away.
	require.Eventually(t, func() bool {
		return errors.Is(pool.Submit(99), ErrPoolStopped)
	}, time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, <-stopErr)
	assert.ErrorIs(t, resubmitErr, ErrPoolStopped)
}
