package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolRunsTasksBeforeShutdown(t *testing.T) {
	wp := NewWorkerPool(4, time.Second)
	var done atomic.Int64

	for range 50 {
		assert.True(t, wp.Submit(func(ctx context.Context) error {
			done.Add(1)
			return nil
		}))
	}
	wp.Submit(func(ctx context.Context) error { return errors.New("mirror down") })
	wp.Submit(func(ctx context.Context) error { panic("bad task") })
	wp.Shutdown()

	assert.Equal(t, int64(50), done.Load())
	assert.False(t, wp.Submit(func(ctx context.Context) error { return nil }))
	assert.Equal(t, int64(1), wp.Dropped())
	wp.Shutdown()
}

func TestTaskContextHasTimeout(t *testing.T) {
	wp := NewWorkerPool(1, 20*time.Millisecond)
	result := make(chan error, 1)

	wp.Submit(func(ctx context.Context) error {
		<-ctx.Done()
		result <- ctx.Err()
		return nil
	})

	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task context never expired")
	}
	wp.Shutdown()
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	wp := NewWorkerPool(0, 0)
	for range 1000 {
		assert.True(t, wp.Submit(func(ctx context.Context) error { return nil }))
	}
	assert.False(t, wp.Submit(func(ctx context.Context) error { return nil }))
	assert.Equal(t, int64(1), wp.Dropped())
}
