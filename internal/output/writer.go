package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/hash/sha256"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Default artifact names.
const (
	DefaultJSONName    = "news.json"
	DefaultSummaryName = "news_summary.txt"
)

// Config names the artifacts and the zone their timestamps are rendered in.
type Config struct {
	Prefix      string
	JSONName    string
	SummaryName string
	Location    *time.Location
}

// Result reports where the artifacts went.
type Result struct {
	JSONURI    string
	SummaryURI string
	Checksum   string
	NoticeID   string
}

// Writer hands a finished batch to every configured sink. The blob store is
// required; the database store and the publisher are optional.
type Writer struct {
	cfg       Config
	blobs     news.BlobStore
	store     news.NewsStore
	publisher news.Publisher
	hasher    *sha256.Hasher
	logger    *zap.Logger
}

// NewWriter constructs a Writer. store and publisher may be nil.
func NewWriter(cfg Config, blobs news.BlobStore, store news.NewsStore, publisher news.Publisher, logger *zap.Logger) (*Writer, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.JSONName == "" {
		cfg.JSONName = DefaultJSONName
	}
	if cfg.SummaryName == "" {
		cfg.SummaryName = DefaultSummaryName
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		cfg:       cfg,
		blobs:     blobs,
		store:     store,
		publisher: publisher,
		hasher:    sha256.New(),
		logger:    logger,
	}, nil
}

// Write stores the JSON document first. A failure there is returned at once;
// failures of the remaining sinks are joined and returned after all ran.
func (w *Writer) Write(ctx context.Context, batch news.Batch) (Result, error) {
	var res Result
	logger := w.logger.With(zap.String("run_id", batch.RunID))

	data, err := NewDocument(batch, w.cfg.Location).Marshal()
	if err != nil {
		return res, err
	}
	res.Checksum = w.hasher.Hash(data)
	res.JSONURI, err = w.blobs.PutObject(ctx, w.objectPath(w.cfg.JSONName), "application/json; charset=utf-8", bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("write %s: %w", w.cfg.JSONName, err)
	}
	logger.Info("news document written", zap.String("uri", res.JSONURI), zap.Int("total", len(batch.News)))

	var errs []error
	summary := Summary(batch, w.cfg.Location)
	res.SummaryURI, err = w.blobs.PutObject(ctx, w.objectPath(w.cfg.SummaryName), "text/plain; charset=utf-8", strings.NewReader(summary))
	if err != nil {
		errs = append(errs, fmt.Errorf("write %s: %w", w.cfg.SummaryName, err))
	}

	if w.store != nil {
		if err := w.store.SaveBatch(ctx, batch); err != nil {
			errs = append(errs, fmt.Errorf("save batch: %w", err))
		} else {
			logger.Debug("batch saved to database")
		}
	}

	if w.publisher != nil {
		id, err := w.publisher.Publish(ctx, w.notice(batch, res))
		if err != nil {
			errs = append(errs, fmt.Errorf("publish notice: %w", err))
		} else {
			res.NoticeID = id
			logger.Info("batch notice published", zap.String("message_id", id))
		}
	}
	return res, errors.Join(errs...)
}

func (w *Writer) objectPath(name string) string {
	prefix := strings.Trim(w.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (w *Writer) notice(batch news.Batch, res Result) news.Notice {
	n := news.Notice{
		RunID:      batch.RunID,
		UpdateTime: batch.UpdateTime,
		Total:      len(batch.News),
		Sources:    len(batch.Reports),
		JSONURI:    res.JSONURI,
		SummaryURI: res.SummaryURI,
		Checksum:   res.Checksum,
	}
	for _, r := range batch.Reports {
		if r.Err != nil {
			n.Failed = append(n.Failed, r.Source)
		}
	}
	return n
}
