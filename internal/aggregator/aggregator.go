// Package aggregator runs one batch: it fans the roster out to the worker
// pool, then merges the harvests in roster order into a single Batch.
package aggregator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/dispatcher"
	"github.com/JakeFAU/realtime-news-aggregator/internal/link"
	"github.com/JakeFAU/realtime-news-aggregator/internal/metrics"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Phase is the lifecycle position of a run.
type Phase string

// Run phases, in order.
const (
	PhaseIdle        Phase = "idle"
	PhaseDispatching Phase = "dispatching"
	PhaseCollecting  Phase = "collecting"
	PhaseMerging     Phase = "merging"
	PhaseDone        Phase = "done"
)

// FetcherFactory builds the fetcher for one source.
type FetcherFactory func(src news.Source) (news.Fetcher, error)

// Config bounds a run.
type Config struct {
	Workers int
	// MaxTotal caps the merged batch. Zero means unlimited.
	MaxTotal int
}

// Aggregator owns the roster and produces independent batches.
type Aggregator struct {
	cfg     Config
	sources []news.Source
	factory FetcherFactory
	clock   news.Clock
	ids     news.IDGenerator
	logger  *zap.Logger

	mu    sync.Mutex
	phase Phase
}

// New constructs an Aggregator.
func New(
	cfg Config,
	sources []news.Source,
	factory FetcherFactory,
	clock news.Clock,
	ids news.IDGenerator,
	logger *zap.Logger,
) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	roster := make([]news.Source, len(sources))
	copy(roster, sources)
	return &Aggregator{
		cfg:     cfg,
		sources: roster,
		factory: factory,
		clock:   clock,
		ids:     ids,
		logger:  logger,
		phase:   PhaseIdle,
	}
}

// Phase reports where the current or last run is.
func (a *Aggregator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Aggregator) setPhase(p Phase, fields ...zap.Field) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
	a.logger.Info("batch phase", append([]zap.Field{zap.String("phase", string(p))}, fields...)...)
}

// Run executes one batch. Configuration problems are returned before any
// source is contacted. Source failures never fail the run: they contribute
// nothing and are listed in Batch.Reports.
func (a *Aggregator) Run(ctx context.Context) (news.Batch, error) {
	empty := news.Batch{News: []news.Record{}}
	a.mu.Lock()
	a.phase = PhaseIdle
	a.mu.Unlock()

	tasks, err := a.buildTasks()
	if err != nil {
		return empty, err
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return empty, fmt.Errorf("generate run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))
	start := a.clock.Now()

	d := dispatcher.New(a.cfg.Workers, a.clock, logger)
	d.OnDispatched(func(queued int) {
		a.setPhase(PhaseCollecting, zap.String("run_id", runID), zap.Int("queued", queued))
	})
	a.setPhase(PhaseDispatching, zap.String("run_id", runID), zap.Int("sources", len(tasks)), zap.Int("workers", a.cfg.Workers))
	results := d.Run(ctx, tasks)
	updateTime := a.clock.Now()

	a.setPhase(PhaseMerging, zap.String("run_id", runID))
	batch, duplicates := merge(a.sources, results, a.cfg.MaxTotal)
	batch.RunID = runID
	batch.UpdateTime = updateTime

	metrics.ObserveBatch(batch.Total, duplicates, updateTime.Sub(start), updateTime)
	if batch.Total == 0 {
		logger.Error("no source produced records", zap.Int("sources", len(a.sources)))
	}
	a.setPhase(PhaseDone,
		zap.String("run_id", runID),
		zap.Int("total", batch.Total),
		zap.Int("duplicates", duplicates),
		zap.Duration("duration", updateTime.Sub(start)),
		zap.Bool("canceled", ctx.Err() != nil),
	)
	return batch, nil
}

func (a *Aggregator) buildTasks() ([]news.Task, error) {
	if err := news.ValidateRoster(a.sources); err != nil {
		return nil, err
	}
	if a.factory == nil {
		return nil, &news.ConfigurationError{Field: "fetch", Reason: "no fetcher factory configured"}
	}
	tasks := make([]news.Task, 0, len(a.sources))
	for i, src := range a.sources {
		src = src.WithDefaults()
		f, err := a.factory(src)
		if err != nil {
			if news.IsConfigurationError(err) {
				return nil, err
			}
			return nil, &news.ConfigurationError{Field: fmt.Sprintf("sources[%d]", i), Reason: err.Error()}
		}
		tasks = append(tasks, news.Task{Index: i, Source: src, Fetcher: f})
	}
	return tasks, nil
}

// merge walks results in roster order. The first record seen for a canonical
// link wins; later ones count as duplicates.
func merge(sources []news.Source, results []news.SourceResult, maxTotal int) (news.Batch, int) {
	batch := news.Batch{
		News:    []news.Record{},
		Reports: make([]news.SourceReport, len(sources)),
	}
	seen := make(map[string]struct{})
	duplicates := 0

	for i, r := range results {
		report := news.SourceReport{
			Source:   r.SourceID,
			Attempts: r.Attempts,
			Fetched:  len(r.Records),
			Err:      r.Err,
		}
		if i < len(sources) {
			report.Category = sources[i].Category
		}
		for _, rec := range r.Records {
			if maxTotal > 0 && len(batch.News) >= maxTotal {
				break
			}
			key, err := link.Normalize(rec.Link, "")
			if err != nil {
				continue
			}
			if _, dup := seen[key]; dup {
				duplicates++
				continue
			}
			seen[key] = struct{}{}
			rec.Link = key
			batch.News = append(batch.News, rec)
			report.Kept++
		}
		batch.Reports[i] = report
	}
	batch.Total = len(batch.News)
	return batch, duplicates
}
