package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan news.Task, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	require.NoError(t, q.Enqueue(context.Background(), news.Task{Index: 3, Source: news.Source{ID: "src-1"}}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		assert.Equal(t, 3, got.Index)
		assert.Equal(t, "src-1", got.Source.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueuePreservesOrder(t *testing.T) {
	t.Parallel()

	q := NewQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), news.Task{Index: i}))
	}
	assert.Equal(t, 3, q.Len())
	q.Close()
	for i := 0; i < 3; i++ {
		task, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, task.Index)
	}
	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), news.Task{Index: 1}))
	_, err := q.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")
	assert.Equal(t, 1, q.Len(), "canceled dequeue leaves work queued")

	err = q.Enqueue(ctx, news.Task{})
	require.EqualError(t, err, "enqueue canceled: context canceled")

	full := NewQueue(1)
	require.NoError(t, full.Enqueue(context.Background(), news.Task{}))
	short, cancelShort := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelShort()
	require.ErrorIs(t, full.Enqueue(short, news.Task{}), context.DeadlineExceeded)
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	q.Close()
	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, q.Enqueue(context.Background(), news.Task{}), ErrClosed)
	// Closing twice should be safe.
	q.Close()
}
