// Package scheduler runs batches on a cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context)

// Scheduler fires a Job on every tick of a standard five-field cron
// expression. A tick that arrives while the previous run is still going is
// skipped.
type Scheduler struct {
	spec   string
	job    Job
	logger *zap.Logger
}

// New validates spec and binds job to it.
func New(spec string, job Job, logger *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, fmt.Errorf("scheduler job is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{spec: spec, job: job, logger: logger}, nil
}

// Run blocks until ctx is done. The job receives ctx, so cancellation reaches
// a run in progress; Run returns once that run has finished.
func (s *Scheduler) Run(ctx context.Context) error {
	cl := cronLogger{s.logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(s.spec, func() { s.job(ctx) }); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}

	c.Start()
	s.logger.Info("scheduler started", zap.String("schedule", s.spec))
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
