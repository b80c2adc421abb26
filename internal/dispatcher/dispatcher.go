// Package dispatcher fans fetch tasks out to a bounded pool of workers.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
	"github.com/JakeFAU/realtime-news-aggregator/internal/queue/memory"
	"github.com/JakeFAU/realtime-news-aggregator/internal/worker"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 3

// Dispatcher runs a batch of tasks with at most Workers fetching at once.
type Dispatcher struct {
	workers      int
	clock        news.Clock
	logger       *zap.Logger
	onDispatched func(queued int)
}

// New creates a Dispatcher.
func New(workers int, clock news.Clock, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		workers: workers,
		clock:   clock,
		logger:  logger,
	}
}

// OnDispatched registers fn to be called once every task is queued, before
// the workers start.
func (d *Dispatcher) OnDispatched(fn func(queued int)) {
	d.onDispatched = fn
}

// Run executes every task and blocks until all workers have returned. The
// result slice is indexed like tasks. Tasks the workers never picked up
// because ctx ended report context.Canceled with no records.
func (d *Dispatcher) Run(ctx context.Context, tasks []news.Task) []news.SourceResult {
	results := make([]news.SourceResult, len(tasks))
	queued := make([]news.Task, len(tasks))
	for i, task := range tasks {
		task.Index = i
		queued[i] = task
		results[i] = news.SourceResult{Index: i, SourceID: task.Source.ID, Err: context.Canceled}
	}
	if len(tasks) == 0 {
		return results
	}

	queue := memory.NewQueue(len(tasks))
	for _, task := range queued {
		if err := queue.Enqueue(ctx, task); err != nil {
			d.logger.Warn("enqueue stopped", zap.String("source", task.Source.ID), zap.Error(err))
			break
		}
	}
	queue.Close()
	if d.onDispatched != nil {
		d.onDispatched(queue.Len())
	}

	size := d.workers
	if size > len(tasks) {
		size = len(tasks)
	}
	out := make(chan news.SourceResult, len(tasks))
	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(worker.New(i, queue, out, d.clock, d.logger.Named("worker")))
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	for r := range out {
		results[r.Index] = r
	}
	return results
}
