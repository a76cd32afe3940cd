package worker

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/market-analysis-back/internal/logging"
)

func TestPoolRunsEveryTask(t *testing.T) {
	pool := NewPool(0, nil)
	var count atomic.Int32
	for i := 0; i < 50; i++ {
		pool.Go(context.Background(), "count", func(context.Context) { count.Add(1) })
	}

	require.NoError(t, pool.Wait(context.Background()))
	assert.EqualValues(t, 50, count.Load())
	assert.Equal(t, 0, pool.Active())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, nil)
	var (
		mu      sync.Mutex
		current int
		peak    int
	)
	release := make(chan struct{})

	for i := 0; i < 6; i++ {
		pool.Go(context.Background(), "bounded", func(context.Context) {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()
			<-release
			mu.Lock()
			current--
			mu.Unlock()
		})
	}

	require.Eventually(t, func() bool { return pool.Active() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, pool.Wait(context.Background()))
	assert.Equal(t, 2, peak)
}

func TestPoolGoDoesNotBlockWhenSaturated(t *testing.T) {
	pool := NewPool(1, nil)
	release := make(chan struct{})
	pool.Go(context.Background(), "holder", func(context.Context) { <-release })

	scheduled := make(chan struct{})
	go func() {
		pool.Go(context.Background(), "queued", func(context.Context) {})
		close(scheduled)
	}()

	select {
	case <-scheduled:
	case <-time.After(time.Second):
		t.Fatal("Go blocked on a saturated pool")
	}
	close(release)
	require.NoError(t, pool.Wait(context.Background()))
}

func TestPoolContainsPanics(t *testing.T) {
	var buf bytes.Buffer
	pool := NewPool(0, logging.NewWithWriter(&buf, "debug"))

	pool.Go(context.Background(), "explode", func(context.Context) { panic("kaboom") })
	require.NoError(t, pool.Wait(context.Background()))

	assert.Contains(t, buf.String(), "task panicked")
	assert.Contains(t, buf.String(), "kaboom")
}

func TestPoolWaitHonoursContext(t *testing.T) {
	pool := NewPool(0, nil)
	release := make(chan struct{})
	defer close(release)
	pool.Go(context.Background(), "slow", func(context.Context) { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Wait(ctx), context.DeadlineExceeded)
}

type pruneRecorder struct {
	cutoffs []time.Time
	removed int
}

func (p *pruneRecorder) PruneTerminal(cutoff time.Time) int {
	p.cutoffs = append(p.cutoffs, cutoff)
	return p.removed
}

func TestSweeperPrunesWithRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pruner := &pruneRecorder{removed: 3}
	sweeper, err := NewSweeper(SweeperConfig{
		Retention: time.Hour,
		Pruner:    pruner,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, sweeper.RunOnce())
	require.Len(t, pruner.cutoffs, 1)
	assert.Equal(t, now.Add(-time.Hour), pruner.cutoffs[0])
}

func TestSweeperRejectsInvalidConfig(t *testing.T) {
	_, err := NewSweeper(SweeperConfig{Retention: time.Hour, Pruner: &pruneRecorder{}, Schedule: "every now and then"})
	assert.Error(t, err)

	_, err = NewSweeper(SweeperConfig{Pruner: &pruneRecorder{}})
	assert.Error(t, err)

	_, err = NewSweeper(SweeperConfig{Retention: time.Hour})
	assert.Error(t, err)
}

func TestSweeperStartStop(t *testing.T) {
	sweeper, err := NewSweeper(SweeperConfig{Retention: time.Hour, Pruner: &pruneRecorder{}})
	require.NoError(t, err)

	sweeper.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sweeper.Stop(ctx)
}
