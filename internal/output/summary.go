package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

const rule = 60

// Summary renders the human-readable digest: records grouped by source in
// roster order, with sources that contributed nothing listed too.
func Summary(batch news.Batch, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	bySource := make(map[string][]news.Record)
	for _, r := range batch.News {
		bySource[r.Source] = append(bySource[r.Source], r)
	}

	var b strings.Builder
	b.WriteString("News summary\n")
	b.WriteString(strings.Repeat("=", rule) + "\n")
	fmt.Fprintf(&b, "Updated: %s\n", batch.UpdateTime.In(loc).Format(TimeLayout))
	fmt.Fprintf(&b, "Total: %d\n", len(batch.News))
	if batch.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", batch.RunID)
	}

	order := make([]string, 0, len(batch.Reports))
	status := make(map[string]news.SourceReport, len(batch.Reports))
	for _, rep := range batch.Reports {
		order = append(order, rep.Source)
		status[rep.Source] = rep
	}
	for _, r := range batch.News {
		if _, ok := status[r.Source]; !ok {
			status[r.Source] = news.SourceReport{Source: r.Source}
			order = append(order, r.Source)
		}
	}

	for _, src := range order {
		items := bySource[src]
		fmt.Fprintf(&b, "\n%s (%d)\n", src, len(items))
		b.WriteString(strings.Repeat("-", rule) + "\n")
		if rep := status[src]; rep.Err != nil {
			fmt.Fprintf(&b, "   failed after %d attempt(s): %v\n", rep.Attempts, rep.Err)
		}
		for i, r := range items {
			fmt.Fprintf(&b, "%d. %s\n   %s\n\n", i+1, r.Title, r.Link)
		}
	}
	return b.String()
}
