package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Markup scrapes a listing page with CSS selectors.
type Markup struct {
	base
}

// Fetch downloads src.URL, falling back to src.FallbackURL when the primary
// page cannot be fetched, and extracts up to the item cap records.
func (m *Markup) Fetch(ctx context.Context, src news.Source) (news.Harvest, error) {
	src = src.WithDefaults()

	var doc *goquery.Document
	parse := func(page news.Page) error {
		d, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
		if err != nil {
			return &news.ParseError{URL: page.URL, Err: err}
		}
		doc = d
		return nil
	}

	attempts, err := m.download(ctx, src, src.URL, parse)
	if err != nil && src.FallbackURL != "" && ctx.Err() == nil {
		m.logger.Warn("primary page unavailable, trying fallback",
			zap.String("url", src.URL),
			zap.String("fallback_url", src.FallbackURL),
			zap.Error(err),
		)
		var more int
		more, err = m.download(ctx, src, src.FallbackURL, parse)
		attempts += more
	}
	if err != nil {
		return news.Harvest{Attempts: attempts}, err
	}

	c := m.newCollector(src)
	doc.Find(src.Selectors.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		title := itemTitle(item, src.Selectors.Title)
		href := itemHref(item, src.Selectors.Link)
		return c.offer(title, href, itemDate(item, src.Selectors.Date))
	})
	return news.Harvest{Records: c.records, Attempts: attempts}, nil
}

func pick(item *goquery.Selection, selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return item
	}
	return item.Find(selector).First()
}

func itemTitle(item *goquery.Selection, selector string) string {
	node := pick(item, selector)
	if title := strings.TrimSpace(node.Text()); title != "" {
		return title
	}
	if title, ok := node.Attr("title"); ok {
		return title
	}
	return ""
}

func itemHref(item *goquery.Selection, selector string) string {
	node := pick(item, selector)
	if href, ok := node.Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if href, ok := node.Find("a[href]").First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	return ""
}

func itemDate(item *goquery.Selection, selector string) *time.Time {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	node := item.Find(selector).First()
	raw, ok := node.Attr("datetime")
	if !ok {
		raw = node.Text()
	}
	return parseDate(raw)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"02 Jan 2006",
	"Jan 2, 2006",
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func compileSelectors(sel news.Selectors) error {
	for _, s := range []struct{ name, raw string }{
		{"item", sel.Item},
		{"title", sel.Title},
		{"link", sel.Link},
		{"date", sel.Date},
	} {
		if strings.TrimSpace(s.raw) == "" {
			continue
		}
		if _, err := cascadia.Compile(s.raw); err != nil {
			return fmt.Errorf("%s selector %q: %w", s.name, s.raw, err)
		}
	}
	return nil
}
