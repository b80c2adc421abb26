// Package worker runs fetch tasks pulled from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/clock/system"
	"github.com/JakeFAU/realtime-news-aggregator/internal/metrics"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Worker consumes tasks and reports one result per task.
type Worker struct {
	id      int
	queue   news.Queue
	results chan<- news.SourceResult
	clock   news.Clock
	logger  *zap.Logger
}

// New constructs a Worker.
func New(
	id int,
	queue news.Queue,
	results chan<- news.SourceResult,
	clock news.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Worker{
		id:      id,
		queue:   queue,
		results: results,
		clock:   clock,
		logger:  logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming tasks until the queue is drained or the context ends.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Debug("worker exiting", zap.Error(err))
			}
			return
		}
		w.results <- w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task news.Task) (result news.SourceResult) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	logger := w.logger.With(zap.String("source", task.Source.ID))
	start := w.clock.Now()
	result = news.SourceResult{Index: task.Index, SourceID: task.Source.ID}

	defer func() {
		if r := recover(); r != nil {
			result.Records = nil
			result.Err = fmt.Errorf("fetcher panic: %v", r)
		}
		result.Duration = w.clock.Now().Sub(start)
		w.observe(logger, result)
	}()

	if task.Fetcher == nil {
		result.Err = errors.New("no fetcher configured")
		return result
	}
	logger.Debug("fetching source", zap.String("url", task.Source.URL))
	harvest, err := task.Fetcher.Fetch(ctx, task.Source)
	result.Attempts = harvest.Attempts
	if err != nil {
		result.Err = err
		return result
	}
	result.Records = harvest.Records
	return result
}

func (w *Worker) observe(logger *zap.Logger, result news.SourceResult) {
	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(result.Err, context.Canceled):
		outcome = metrics.OutcomeCanceled
	case result.Err != nil:
		outcome = metrics.OutcomeFailed
	case len(result.Records) == 0:
		outcome = metrics.OutcomeEmpty
	}
	metrics.ObserveSource(result.SourceID, outcome, result.Duration)

	if result.Err != nil {
		logger.Warn("source failed",
			zap.Int("attempts", result.Attempts),
			zap.Duration("duration", result.Duration),
			zap.Error(result.Err),
		)
		return
	}
	logger.Info("source fetched",
		zap.Int("records", len(result.Records)),
		zap.Int("attempts", result.Attempts),
		zap.Duration("duration", result.Duration),
	)
}
