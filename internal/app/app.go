// Package app initializes and holds the long-lived services of a newsagg
// process and runs batches against them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/aggregator"
	"github.com/JakeFAU/realtime-news-aggregator/internal/clock/system"
	"github.com/JakeFAU/realtime-news-aggregator/internal/config"
	"github.com/JakeFAU/realtime-news-aggregator/internal/extract"
	collyfetcher "github.com/JakeFAU/realtime-news-aggregator/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-news-aggregator/internal/id/uuid"
	"github.com/JakeFAU/realtime-news-aggregator/internal/metrics"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
	"github.com/JakeFAU/realtime-news-aggregator/internal/output"
	"github.com/JakeFAU/realtime-news-aggregator/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/realtime-news-aggregator/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-news-aggregator/internal/storage/gcs"
	"github.com/JakeFAU/realtime-news-aggregator/internal/storage/local"
	memorystorage "github.com/JakeFAU/realtime-news-aggregator/internal/storage/memory"
	"github.com/JakeFAU/realtime-news-aggregator/internal/storage/postgres"
)

// Sinks are the destinations of a finished batch. Blobs is required.
type Sinks struct {
	Blobs     news.BlobStore
	Store     news.NewsStore
	Publisher news.Publisher
}

// Report summarizes one completed batch.
type Report struct {
	Batch  news.Batch
	Output output.Result
}

// App holds the shared services: the roster-bound aggregator and the writer.
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	aggregator *aggregator.Aggregator
	writer     *output.Writer
	closers    []func() error
}

// New dials the sinks named by cfg and builds an App around the colly downloader.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sinks, closers, err := dialSinks(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := NewWithSinks(cfg, sinks, newDownloader(cfg), logger)
	if err != nil {
		runClosers(closers, logger)
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// NewWithSinks builds an App from already constructed collaborators.
func NewWithSinks(cfg *config.Config, sinks Sinks, downloader news.Downloader, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	writer, err := output.NewWriter(cfg.Writer(), sinks.Blobs, sinks.Store, sinks.Publisher, logger.Named("output"))
	if err != nil {
		return nil, fmt.Errorf("init writer: %w", err)
	}

	clock := system.New()
	deps := extract.Deps{
		Downloader: downloader,
		Clock:      clock,
		Retry:      cfg.RetryPolicy(),
		Rules:      cfg.Rules(),
		DefaultCap: cfg.Fetch.MaxItemsPerSource,
		Logger:     logger.Named("extract"),
	}
	factory := func(src news.Source) (news.Fetcher, error) {
		return extract.New(src, deps)
	}
	agg := aggregator.New(
		aggregator.Config{Workers: cfg.Fetch.MaxWorkers, MaxTotal: cfg.Batch.MaxTotal},
		cfg.Sources,
		factory,
		clock,
		uuid.New(),
		logger.Named("aggregator"),
	)
	return &App{cfg: cfg, logger: logger, aggregator: agg, writer: writer}, nil
}

// RunOnce fetches one batch and writes it. Cancellation of ctx stops the
// fetch phase early, but whatever was collected is still written.
func (a *App) RunOnce(ctx context.Context) (Report, error) {
	batch, err := a.aggregator.Run(ctx)
	if err != nil {
		return Report{Batch: batch}, fmt.Errorf("run batch: %w", err)
	}

	writeCtx := context.WithoutCancel(ctx)
	res, err := a.writer.Write(writeCtx, batch)
	if pushErr := metrics.Push(writeCtx, a.cfg.Metrics.PushGatewayURL, a.cfg.Metrics.Job); pushErr != nil {
		a.logger.Warn("metrics push failed", zap.Error(pushErr))
	}
	report := Report{Batch: batch, Output: res}
	if err != nil {
		return report, fmt.Errorf("write batch: %w", err)
	}
	a.logger.Info("batch complete",
		zap.String("run_id", batch.RunID),
		zap.Int("total", batch.Total),
		zap.String("uri", res.JSONURI),
	)
	return report, nil
}

// Close releases every dialed client.
func (a *App) Close() {
	runClosers(a.closers, a.logger)
	a.closers = nil
}

func newDownloader(cfg *config.Config) *collyfetcher.Downloader {
	headers := http.Header{}
	headers.Set("Accept-Language", "zh-HK,zh;q=0.9,en;q=0.8")
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		RespectRobots: cfg.Fetch.RespectRobots,
		Timeout:       cfg.Fetch.RequestTimeout,
		Headers:       headers,
		Limiter:       ratelimit.New(cfg.RateLimit()),
	})
}

func dialSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Sinks, []func() error, error) {
	var (
		sinks   Sinks
		closers []func() error
	)
	fail := func(err error) (Sinks, []func() error, error) {
		runClosers(closers, logger)
		return Sinks{}, nil, err
	}

	switch cfg.Output.Backend {
	case config.BackendGCS:
		store, closer, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.Output.GCSBucket})
		if err != nil {
			return fail(fmt.Errorf("init gcs storage: %w", err))
		}
		closers = append(closers, closer)
		sinks.Blobs = store
		logger.Info("using gcs blob store", zap.String("bucket", cfg.Output.GCSBucket))
	case config.BackendMemory:
		sinks.Blobs = memorystorage.NewBlobStore()
		logger.Info("using in-memory blob store")
	default:
		store, err := local.New(local.Config{BaseDir: cfg.Output.Dir})
		if err != nil {
			return fail(fmt.Errorf("init local storage: %w", err))
		}
		sinks.Blobs = store
		logger.Info("using local blob store", zap.String("dir", cfg.Output.Dir))
	}

	if cfg.Postgres.DSN != "" {
		store, err := postgres.NewNewsStore(ctx, postgres.Config{
			DSN:        cfg.Postgres.DSN,
			Table:      cfg.Postgres.Table,
			BatchTable: cfg.Postgres.BatchTable,
			MaxConns:   cfg.Postgres.MaxConns,
		})
		if err != nil {
			return fail(fmt.Errorf("init postgres: %w", err))
		}
		closers = append(closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return fail(fmt.Errorf("ensure postgres schema: %w", err))
		}
		sinks.Store = store
		logger.Info("postgres news store enabled", zap.String("table", cfg.Postgres.Table))
	}

	if cfg.PubSub.Topic != "" {
		pub, closer, err := pubsubpublisher.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			return fail(fmt.Errorf("init pubsub: %w", err))
		}
		closers = append(closers, closer)
		sinks.Publisher = pub
		logger.Info("pubsub notices enabled", zap.String("topic", cfg.PubSub.Topic))
	}
	return sinks, closers, nil
}

func runClosers(closers []func() error, logger *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}
