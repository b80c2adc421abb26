// Package collyfetcher downloads source pages and feeds using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/realtime-news-aggregator/internal/link"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

const defaultTimeout = 10 * time.Second

// acceptHeader covers both markup listings and syndication feeds.
const acceptHeader = "text/html,application/xhtml+xml,application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8"

// RateLimiter blocks until a request to rawURL may proceed.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Headers       http.Header
	Limiter       RateLimiter
}

// Downloader implements news.Downloader using the Colly collector.
type Downloader struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Downloader. The timeout and transport live on the shared HTTP
// client of the base collector; per-request clones never touch them.
func New(cfg Config) *Downloader {
	// Retries visit the same URL again, and clones share the visited store.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())

	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport)
	}
	c.WithTransport(transport)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)

	return &Downloader{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Download executes a single HTTP GET. Non-2xx responses are reported as
// *news.StatusError so callers can tell transient failures from permanent ones.
func (d *Downloader) Download(ctx context.Context, rawURL string) (news.Page, error) {
	if !link.Valid(rawURL) {
		return news.Page{}, fmt.Errorf("download %q: %w", rawURL, news.ErrInvalidURL)
	}
	if d.cfg.Limiter != nil {
		if err := d.cfg.Limiter.Wait(ctx, rawURL); err != nil {
			return news.Page{}, err
		}
	}

	var (
		page     news.Page
		fetchErr error
	)
	start := time.Now()
	collector := d.buildCollector(ctx, start, &page, &fetchErr)
	if err := d.runCollector(collector, rawURL, &fetchErr); err != nil {
		return news.Page{}, err
	}
	page.URL = rawURL
	return page, nil
}

func (d *Downloader) buildCollector(
	ctx context.Context,
	start time.Time,
	page *news.Page,
	fetchErr *error,
) *colly.Collector {
	collector := d.baseCollector.Clone()
	collector.Context = ctx
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !d.cfg.RespectRobots

	d.configureCollectorHooks(collector, start, page, fetchErr)
	return collector
}

func (d *Downloader) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	page *news.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		d.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = news.Page{
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			u := ""
			if r.Request != nil && r.Request.URL != nil {
				u = r.Request.URL.String()
			}
			*fetchErr = &news.StatusError{URL: u, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (d *Downloader) runCollector(collector *colly.Collector, rawURL string, fetchErr *error) error {
	err := collector.Visit(rawURL)
	if *fetchErr != nil {
		return fmt.Errorf("colly response failed: %w", *fetchErr)
	}
	if errors.Is(err, colly.ErrRobotsTxtBlocked) {
		return fmt.Errorf("colly visit %s: %w", rawURL, news.ErrDisallowed)
	}
	if err != nil {
		return fmt.Errorf("colly visit failed: %w", err)
	}
	return nil
}

func (d *Downloader) copyHeaders(r *colly.Request) {
	if d.cfg.Headers == nil {
		return
	}
	for key, values := range d.cfg.Headers {
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
