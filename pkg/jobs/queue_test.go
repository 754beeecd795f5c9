package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPermanent = errors.New("permanent")

func TestQueueRetriesTransientFailures(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("export", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-1", Type: "class"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueGivesUpOnPermanentFailure(t *testing.T) {
	var calls int32
	gaveUp := make(chan error, 1)
	q := NewQueue("export", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errPermanent
	}, QueueConfig{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Retryable:  func(err error) bool { return !errors.Is(err, errPermanent) },
		OnGiveUp:   func(job Job, err error) { gaveUp <- err },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-2"}))
	select {
	case err := <-gaveUp:
		assert.ErrorIs(t, err, errPermanent)
	case <-time.After(2 * time.Second):
		t.Fatal("give up hook not called")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterRetries(t *testing.T) {
	gaveUp := make(chan Job, 1)
	q := NewQueue("export", func(ctx context.Context, job Job) error {
		return errors.New("still failing")
	}, QueueConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		OnGiveUp:   func(job Job, err error) { gaveUp <- job },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "job-3"}))
	select {
	case job := <-gaveUp:
		assert.Equal(t, "job-3", job.ID)
		assert.Equal(t, 2, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("give up hook not called")
	}
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("export", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "x"}))
}
