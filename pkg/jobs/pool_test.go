package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAllBoundsConcurrency(t *testing.T) {
	var running, peak, done int32
	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&done, 1)
		}
	}

	skipped := RunAll(context.Background(), 3, tasks)
	assert.Empty(t, skipped)
	assert.Equal(t, int32(12), atomic.LoadInt32(&done))
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunAllStopsStartingAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran int32
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) {
			atomic.AddInt32(&ran, 1)
			cancel()
			<-ctx.Done()
		}
	}

	skipped := RunAll(ctx, 1, tasks)
	require.Equal(t, int32(1), atomic.LoadInt32(&ran))
	assert.Equal(t, []int{1, 2, 3, 4}, skipped)
}

func TestRunAllEmpty(t *testing.T) {
	assert.Empty(t, RunAll(context.Background(), 4, nil))
}
