package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(4)
	defer p.Stop()

	var ran atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		err := p.Submit(context.Background(), func(workerID int) {
			defer wg.Done()
			assert.GreaterOrEqual(t, workerID, 0)
			assert.Less(t, workerID, 4)
			ran.Add(1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, int64(20), ran.Load())
}

func TestPool_MinimumOneWorker(t *testing.T) {
	p := NewPool(0)
	defer p.Stop()
	assert.Equal(t, 1, p.Workers())
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := NewPool(2)
	p.Stop()

	err := p.Submit(context.Background(), func(int) {})
	assert.ErrorIs(t, err, ErrPoolStopped)

	// Stop is idempotent.
	p.Stop()
}

func TestPool_SubmitHonoursContext(t *testing.T) {
	p := NewPool(1)
	defer p.Stop()

	block := make(chan struct{})
	var wg sync.WaitGroup

	// Occupy the single worker and fill the queue so the next Submit blocks.
	for range 2 {
		wg.Add(1)
		err := p.Submit(context.Background(), func(int) {
			defer wg.Done()
			<-block
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func(int) { t.Error("task must not run") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	wg.Wait()
}

func TestPool_StopWaitsForInflight(t *testing.T) {
	p := NewPool(2)

	var done atomic.Bool
	err := p.Submit(context.Background(), func(int) {
		time.Sleep(30 * time.Millisecond)
		done.Store(true)
	})
	require.NoError(t, err)

	p.Stop()
	assert.True(t, done.Load())
}
