package extract

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Feed reads an RSS or Atom document.
type Feed struct {
	base
	topics []string
}

// Fetch downloads and parses src.URL. A malformed feed is a permanent failure.
func (f *Feed) Fetch(ctx context.Context, src news.Source) (news.Harvest, error) {
	var feed *gofeed.Feed
	attempts, err := f.download(ctx, src, src.URL, func(page news.Page) error {
		parsed, err := gofeed.NewParser().Parse(bytes.NewReader(page.Body))
		if err != nil {
			return &news.ParseError{URL: page.URL, Err: err}
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return news.Harvest{Attempts: attempts}, err
	}

	c := f.newCollector(src)
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		if !f.onTopic(item) {
			f.logger.Debug("skipping off-topic entry", zap.String("title", item.Title))
			continue
		}
		if !c.offer(item.Title, entryLink(item), entryDate(item)) {
			break
		}
	}
	return news.Harvest{Records: c.records, Attempts: attempts}, nil
}

// onTopic keeps entries whose title or description mentions any topical keyword.
func (f *Feed) onTopic(item *gofeed.Item) bool {
	if len(f.topics) == 0 {
		return true
	}
	text := strings.ToLower(item.Title + " " + item.Description)
	for _, kw := range f.topics {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func entryLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}

func entryDate(item *gofeed.Item) *time.Time {
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		return &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		return &t
	default:
		return nil
	}
}
