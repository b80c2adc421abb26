package aggregator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/realtime-news-aggregator/internal/clock/system"
	"github.com/JakeFAU/realtime-news-aggregator/internal/extract"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
	"github.com/JakeFAU/realtime-news-aggregator/internal/retry"
	"github.com/JakeFAU/realtime-news-aggregator/internal/validate"
)

var batchTime = time.Date(2025, 6, 1, 1, 30, 0, 0, time.UTC)

type seqIDs struct{ n atomic.Int32 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("run-%d", s.n.Add(1)), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

type staticFetcher struct {
	records []news.Record
	err     error
}

func (f staticFetcher) Fetch(context.Context, news.Source) (news.Harvest, error) {
	if f.err != nil {
		return news.Harvest{Attempts: 4}, f.err
	}
	return news.Harvest{Records: f.records, Attempts: 1}, nil
}

func rec(src, link string) news.Record {
	return news.Record{Title: "Headline " + link, Link: link, Source: src, Category: news.CategoryTech, ScrapedAt: batchTime}
}

func src(id string) news.Source {
	return news.Source{ID: id, Category: news.CategoryTech, Mode: news.ModeFeed, URL: "https://" + id + ".example.com/feed"}
}

func factoryOf(fetchers map[string]news.Fetcher) FetcherFactory {
	return func(s news.Source) (news.Fetcher, error) {
		f, ok := fetchers[s.ID]
		if !ok {
			return nil, fmt.Errorf("no fetcher for %s", s.ID)
		}
		return f, nil
	}
}

func TestRunMergesInRosterOrder(t *testing.T) {
	t.Parallel()

	fetchers := map[string]news.Fetcher{
		"a": staticFetcher{records: []news.Record{rec("a", "https://x.example.com/1"), rec("a", "https://x.example.com/2")}},
		"b": staticFetcher{records: []news.Record{rec("b", "https://X.example.com/1/"), rec("b", "https://x.example.com/3")}},
		"c": staticFetcher{records: []news.Record{rec("c", "https://x.example.com/4?utm_source=feed")}},
	}
	agg := New(Config{Workers: 3}, []news.Source{src("a"), src("b"), src("c")}, factoryOf(fetchers),
		system.Frozen{At: batchTime}, &seqIDs{}, zap.NewNop())

	batch, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", batch.RunID)
	assert.Equal(t, batchTime, batch.UpdateTime)
	require.Equal(t, 4, batch.Total)
	require.Len(t, batch.News, 4)

	links := make([]string, 0, len(batch.News))
	for _, r := range batch.News {
		links = append(links, r.Link)
	}
	assert.Equal(t, []string{
		"https://x.example.com/1",
		"https://x.example.com/2",
		"https://x.example.com/3",
		"https://x.example.com/4",
	}, links)
	assert.Equal(t, "a", batch.News[0].Source, "first seen wins")

	require.Len(t, batch.Reports, 3)
	assert.Equal(t, news.SourceReport{Source: "b", Category: news.CategoryTech, Attempts: 1, Fetched: 2, Kept: 1}, batch.Reports[1])
	assert.Equal(t, PhaseDone, agg.Phase())
}

func TestRunMaxTotal(t *testing.T) {
	t.Parallel()

	fetchers := map[string]news.Fetcher{
		"a": staticFetcher{records: []news.Record{rec("a", "https://x.example.com/1"), rec("a", "https://x.example.com/2")}},
		"b": staticFetcher{records: []news.Record{rec("b", "https://x.example.com/3")}},
	}
	agg := New(Config{Workers: 2, MaxTotal: 2}, []news.Source{src("a"), src("b")}, factoryOf(fetchers),
		system.Frozen{At: batchTime}, &seqIDs{}, zap.NewNop())

	batch, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 0, batch.Reports[1].Kept)
}

func TestRunFailingSourceContributesNothing(t *testing.T) {
	t.Parallel()

	fetchErr := &news.FetchError{Source: "b", Attempts: 4, Transient: true, Err: errors.New("timeout")}
	fetchers := map[string]news.Fetcher{
		"a": staticFetcher{records: []news.Record{rec("a", "https://x.example.com/1")}},
		"b": staticFetcher{err: fetchErr},
	}
	agg := New(Config{Workers: 2}, []news.Source{src("a"), src("b")}, factoryOf(fetchers),
		system.Frozen{At: batchTime}, &seqIDs{}, zap.NewNop())

	batch, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Total)
	require.ErrorIs(t, batch.Reports[1].Err, fetchErr)
	assert.Equal(t, 4, batch.Reports[1].Attempts)
	assert.Zero(t, batch.Reports[1].Kept)
}

func TestRunTotalFailureIsWellFormed(t *testing.T) {
	t.Parallel()

	fetchers := map[string]news.Fetcher{
		"a": staticFetcher{err: errors.New("down")},
		"b": staticFetcher{err: errors.New("down")},
	}
	agg := New(Config{Workers: 1}, []news.Source{src("a"), src("b")}, factoryOf(fetchers),
		system.Frozen{At: batchTime}, &seqIDs{}, zap.NewNop())

	batch, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Total)
	require.NotNil(t, batch.News)
	assert.Empty(t, batch.News)
	assert.Equal(t, batchTime, batch.UpdateTime)
}

func TestRunConfigurationErrorsBeforeDispatch(t *testing.T) {
	t.Parallel()

	factory := func(s news.Source) (news.Fetcher, error) {
		if s.ID == "broken" {
			return nil, errors.New("selector does not compile")
		}
		return staticFetcher{}, nil
	}

	testCases := []struct {
		name    string
		sources []news.Source
	}{
		{"empty roster", nil},
		{"duplicate ids", []news.Source{src("a"), src("a")}},
		{"factory failure", []news.Source{src("a"), src("broken")}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			agg := New(Config{}, tc.sources, factory, system.Frozen{At: batchTime}, &seqIDs{}, zap.NewNop())
			batch, err := agg.Run(context.Background())
			require.Error(t, err)
			assert.True(t, news.IsConfigurationError(err), "got %v", err)
			assert.Empty(t, batch.News)
			assert.Empty(t, batch.RunID)
			assert.Equal(t, PhaseIdle, agg.Phase())
		})
	}
}

func TestRunIDFailure(t *testing.T) {
	t.Parallel()

	agg := New(Config{}, []news.Source{src("a")}, factoryOf(map[string]news.Fetcher{"a": staticFetcher{}}),
		system.Frozen{At: batchTime}, failingIDs{}, zap.NewNop())
	_, err := agg.Run(context.Background())
	require.ErrorContains(t, err, "generate run id")
}

func TestRunsAreIndependent(t *testing.T) {
	t.Parallel()

	fetchers := map[string]news.Fetcher{
		"a": staticFetcher{records: []news.Record{rec("a", "https://x.example.com/1")}},
	}
	agg := New(Config{}, []news.Source{src("a")}, factoryOf(fetchers), system.Frozen{At: batchTime}, &seqIDs{}, zap.NewNop())

	first, err := agg.Run(context.Background())
	require.NoError(t, err)
	second, err := agg.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Total)
	assert.Equal(t, 1, second.Total, "seen set is per run")
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunLogsPhasesInOrder(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	fetchers := map[string]news.Fetcher{"a": staticFetcher{records: []news.Record{rec("a", "https://x.example.com/1")}}}
	agg := New(Config{}, []news.Source{src("a")}, factoryOf(fetchers), system.Frozen{At: batchTime}, &seqIDs{}, zap.New(core))

	_, err := agg.Run(context.Background())
	require.NoError(t, err)

	var phases []string
	for _, entry := range logs.FilterMessage("batch phase").All() {
		phases = append(phases, entry.ContextMap()["phase"].(string))
	}
	assert.Equal(t, []string{"dispatching", "collecting", "merging", "done"}, phases)
}

// downloader serves fixed bodies by URL.
type downloader map[string]string

func (d downloader) Download(_ context.Context, rawURL string) (news.Page, error) {
	body, ok := d[rawURL]
	if !ok {
		return news.Page{}, &news.StatusError{URL: rawURL, StatusCode: http.StatusServiceUnavailable}
	}
	return news.Page{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func TestRunEndToEndWithExtractors(t *testing.T) {
	t.Parallel()

	const feed = `<?xml version="1.0"?><rss version="2.0"><channel><title>A</title>
<item><title>First story from source A today</title><link>https://news.example.com/a/1</link></item>
<item><title>Second story from source A today</title><link>https://news.example.com/a/2</link></item>
<item><title>Third story from source A today</title><link>https://news.example.com/a/3</link></item>
</channel></rss>`
	const page = `<html><body>
<a href="https://news.example.com/a/1?utm_campaign=x">First story, republished by B</a>
<a href="/b/1">Only story written by source B</a>
</body></html>`

	sources := []news.Source{
		{ID: "A", Category: news.CategoryGeneral, Mode: news.ModeFeed, URL: "https://feeds.example.com/a.xml", ItemCap: 2},
		{ID: "B", Category: news.CategoryTech, Mode: news.ModeMarkup, URL: "https://news.example.com/"},
		{ID: "C", Category: news.CategoryTravel, Mode: news.ModeFeed, URL: "https://down.example.com/feed"},
	}
	deps := extract.Deps{
		Downloader: downloader{
			"https://feeds.example.com/a.xml": feed,
			"https://news.example.com/":       page,
		},
		Clock: system.Frozen{At: batchTime},
		Retry: retry.Policy{
			MaxRetries: 2,
			Delay:      time.Second,
			Sleep:      func(context.Context, time.Duration) error { return nil },
		},
		Rules:  validate.Rules{MinTitleLength: 12, MaxTitleLength: 200},
		Logger: zap.NewNop(),
	}
	factory := func(s news.Source) (news.Fetcher, error) { return extract.New(s, deps) }

	agg := New(Config{Workers: 2}, sources, factory, system.Frozen{At: batchTime}, &seqIDs{}, zap.NewNop())
	batch, err := agg.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, batch.Total)
	assert.Equal(t, "https://news.example.com/a/1", batch.News[0].Link)
	assert.Equal(t, "A", batch.News[0].Source)
	assert.Equal(t, "https://news.example.com/a/2", batch.News[1].Link)
	assert.Equal(t, "https://news.example.com/b/1", batch.News[2].Link)
	assert.Equal(t, news.CategoryTech, batch.News[2].Category)

	require.Len(t, batch.Reports, 3)
	assert.Equal(t, 2, batch.Reports[0].Fetched)
	assert.Equal(t, 2, batch.Reports[1].Fetched)
	assert.Equal(t, 1, batch.Reports[1].Kept)
	var fetchErr *news.FetchError
	require.ErrorAs(t, batch.Reports[2].Err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
}
