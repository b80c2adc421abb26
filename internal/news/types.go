package news

import "time"

// Category groups sources for the frontend.
type Category string

// Known categories.
const (
	CategoryTech    Category = "tech"
	CategoryTravel  Category = "travel"
	CategoryGeneral Category = "general"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTech, CategoryTravel, CategoryGeneral:
		return true
	default:
		return false
	}
}

// Record is one normalized article produced by a fetcher.
type Record struct {
	Title       string
	Link        string
	Source      string
	Category    Category
	ScrapedAt   time.Time
	PublishedAt *time.Time
}

// Harvest is what a single source yields for a run.
type Harvest struct {
	Records  []Record
	Attempts int
}

// Page is a downloaded document.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// SourceResult is the terminal state of one fetch task.
type SourceResult struct {
	Index    int
	SourceID string
	Records  []Record
	Attempts int
	Duration time.Duration
	Err      error
}

// SourceReport summarizes a source's contribution to a batch.
type SourceReport struct {
	Source   string
	Category Category
	Attempts int
	Fetched  int
	Kept     int
	Err      error
}

// Batch is the merged, deduplicated output of one run.
type Batch struct {
	RunID      string
	UpdateTime time.Time
	Total      int
	News       []Record
	Reports    []SourceReport
}

// Notice announces a written batch to downstream consumers.
type Notice struct {
	RunID      string    `json:"run_id"`
	UpdateTime time.Time `json:"update_time"`
	Total      int       `json:"total"`
	Sources    int       `json:"sources"`
	Failed     []string  `json:"failed_sources,omitempty"`
	JSONURI    string    `json:"json_uri"`
	SummaryURI string    `json:"summary_uri,omitempty"`
	Checksum   string    `json:"sha256"`
}
