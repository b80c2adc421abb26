// Package memory provides the in-process task queue feeding the worker pool.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// ErrClosed is returned once a closed queue has been drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan news.Task
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan news.Task, capacity),
	}
}

// Enqueue pushes a task into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task news.Task) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("enqueue canceled: %w", err)
	}
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- task:
		return nil
	}
}

// Dequeue pops the next task. A canceled context wins over queued work.
func (q *Queue) Dequeue(ctx context.Context) (news.Task, error) {
	if err := ctx.Err(); err != nil {
		return news.Task{}, fmt.Errorf("dequeue canceled: %w", err)
	}
	select {
	case <-ctx.Done():
		return news.Task{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case task, ok := <-q.ch:
		if !ok {
			return news.Task{}, ErrClosed
		}
		return task, nil
	}
}

// Len reports the number of queued tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting tasks. Queued tasks can still be dequeued.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
