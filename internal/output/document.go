// Package output renders a batch into the frontend document and the
// plain-text summary, and hands both to the configured sinks.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// TimeLayout is the timestamp format the frontend expects.
const TimeLayout = "2006-01-02 15:04:05"

// Document is the JSON artifact consumed by the frontend.
type Document struct {
	UpdateTime string `json:"update_time"`
	Total      int    `json:"total"`
	News       []Item `json:"news"`
}

// Item is one record as rendered for the frontend.
type Item struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Source    string `json:"source"`
	Category  string `json:"category"`
	ScrapedAt string `json:"scraped_at"`
}

// Zone returns the fixed UTC+offset zone used for rendered timestamps.
func Zone(offsetHours int) *time.Location {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	if offsetHours == 0 {
		name = "UTC"
	}
	return time.FixedZone(name, offsetHours*int(time.Hour/time.Second))
}

// NewDocument renders batch in loc.
func NewDocument(batch news.Batch, loc *time.Location) Document {
	if loc == nil {
		loc = time.UTC
	}
	doc := Document{
		UpdateTime: batch.UpdateTime.In(loc).Format(TimeLayout),
		Total:      len(batch.News),
		News:       make([]Item, 0, len(batch.News)),
	}
	for _, r := range batch.News {
		doc.News = append(doc.News, Item{
			Title:     r.Title,
			Link:      r.Link,
			Source:    r.Source,
			Category:  string(r.Category),
			ScrapedAt: r.ScrapedAt.In(loc).Format(TimeLayout),
		})
	}
	return doc
}

// Marshal encodes the document as indented JSON. HTML escaping is off so
// query strings keep a literal "&".
func (d Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}
