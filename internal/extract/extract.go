// Package extract turns downloaded listing pages and feeds into validated records.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/clock/system"
	"github.com/JakeFAU/realtime-news-aggregator/internal/link"
	"github.com/JakeFAU/realtime-news-aggregator/internal/metrics"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
	"github.com/JakeFAU/realtime-news-aggregator/internal/retry"
	"github.com/JakeFAU/realtime-news-aggregator/internal/validate"
)

// DefaultItemCap bounds a source when neither it nor Deps sets a cap.
const DefaultItemCap = 15

// Deps are the collaborators shared by every fetcher of a run.
type Deps struct {
	Downloader news.Downloader
	Clock      news.Clock
	Retry      retry.Policy
	Rules      validate.Rules
	DefaultCap int
	Logger     *zap.Logger
}

// New builds the fetcher matching src.Mode.
func New(src news.Source, deps Deps) (news.Fetcher, error) {
	if deps.Downloader == nil {
		return nil, &news.ConfigurationError{Field: "fetch", Reason: "downloader is required"}
	}
	validator, err := validate.New(deps.Rules, src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.DefaultCap <= 0 {
		deps.DefaultCap = DefaultItemCap
	}
	b := base{
		deps:      deps,
		validator: validator,
		logger:    deps.Logger.With(zap.String("source", src.ID), zap.String("mode", string(src.Mode))),
	}

	switch src.Mode {
	case news.ModeMarkup:
		src = src.WithDefaults()
		if err := compileSelectors(src.Selectors); err != nil {
			return nil, &news.ConfigurationError{Field: "sources." + src.ID + ".selectors", Reason: err.Error()}
		}
		return &Markup{base: b}, nil
	case news.ModeFeed:
		return &Feed{base: b, topics: lowerAll(src.TopicalFilter)}, nil
	default:
		return nil, &news.ConfigurationError{Field: "sources." + src.ID + ".mode", Reason: fmt.Sprintf("unknown mode %q", src.Mode)}
	}
}

type base struct {
	deps      Deps
	validator *validate.Validator
	logger    *zap.Logger
}

// download fetches rawURL through the retry policy and hands the page to parse
// inside the same attempt, so malformed content ends retrying immediately.
func (b *base) download(ctx context.Context, src news.Source, rawURL string, parse func(news.Page) error) (int, error) {
	policy := b.deps.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		b.logger.Warn("fetch attempt failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return policy.Fetch(ctx, src.ID, rawURL, func(ctx context.Context) error {
		metrics.ObserveAttempt(src.ID)
		page, err := b.deps.Downloader.Download(ctx, rawURL)
		if err != nil {
			return err
		}
		return parse(page)
	})
}

// collector applies validation, within-source dedup and the item cap.
type collector struct {
	src       news.Source
	base      string
	validator *validate.Validator
	logger    *zap.Logger
	limit     int
	clock     news.Clock
	seen      map[string]struct{}
	records   []news.Record
}

func (b *base) newCollector(src news.Source) *collector {
	limit := src.Cap(b.deps.DefaultCap)
	return &collector{
		src:       src,
		base:      src.ResolveBase(),
		validator: b.validator,
		logger:    b.logger,
		limit:     limit,
		clock:     b.deps.Clock,
		seen:      make(map[string]struct{}, limit),
		records:   make([]news.Record, 0, limit),
	}
}

// offer considers one candidate and reports whether more are wanted.
func (c *collector) offer(title, href string, published *time.Time) bool {
	if c.full() {
		return false
	}
	title = collapseSpace(title)
	canonical, err := link.Normalize(href, c.base)
	if err != nil {
		c.reject(title, href, validate.ReasonInvalidLink, err)
		return true
	}
	rec := news.Record{
		Title:       title,
		Link:        canonical,
		Source:      c.src.ID,
		Category:    c.src.Category,
		ScrapedAt:   c.clock.Now(),
		PublishedAt: published,
	}
	if err := c.validator.Check(rec); err != nil {
		c.reject(title, canonical, validate.Reason(err), err)
		return true
	}
	if _, dup := c.seen[canonical]; dup {
		return true
	}
	c.seen[canonical] = struct{}{}
	c.records = append(c.records, rec)
	return !c.full()
}

func (c *collector) full() bool {
	return len(c.records) >= c.limit
}

func (c *collector) reject(title, href, reason string, err error) {
	metrics.ObserveRejected(c.src.ID, reason)
	c.logger.Debug("skipping item",
		zap.String("title", title),
		zap.String("link", href),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
