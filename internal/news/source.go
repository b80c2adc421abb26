package news

import (
	"fmt"
	"net/url"
	"strings"
)

// Mode selects the fetcher family for a source.
type Mode string

// Fetch modes.
const (
	ModeMarkup Mode = "markup"
	ModeFeed   Mode = "feed"
)

// Default markup selectors: every anchor is a candidate, titled by its own text.
const (
	DefaultItemSelector = "a[href]"
)

// Selectors are the structural rules of a markup source. Empty Title and Link
// selectors refer to the item element itself.
type Selectors struct {
	Item  string `mapstructure:"item" yaml:"item"`
	Title string `mapstructure:"title" yaml:"title"`
	Link  string `mapstructure:"link" yaml:"link"`
	Date  string `mapstructure:"date" yaml:"date"`
}

// Source is one roster entry. It is read-only for the duration of a run.
type Source struct {
	ID             string    `mapstructure:"id" yaml:"id"`
	Category       Category  `mapstructure:"category" yaml:"category"`
	Mode           Mode      `mapstructure:"mode" yaml:"mode"`
	URL            string    `mapstructure:"url" yaml:"url"`
	BaseURL        string    `mapstructure:"base_url" yaml:"base_url"`
	FallbackURL    string    `mapstructure:"fallback_url" yaml:"fallback_url"`
	Selectors      Selectors `mapstructure:"selectors" yaml:"selectors"`
	ItemCap        int       `mapstructure:"item_cap" yaml:"item_cap"`
	TopicalFilter  []string  `mapstructure:"topical_filter" yaml:"topical_filter"`
	MinTitleLength int       `mapstructure:"min_title_length" yaml:"min_title_length"`
	DomainCheck    string    `mapstructure:"domain_check" yaml:"domain_check"`
	URLPattern     string    `mapstructure:"url_pattern" yaml:"url_pattern"`
	ExcludeTitles  []string  `mapstructure:"exclude_titles" yaml:"exclude_titles"`
}

// ResolveBase returns the URL relative links are resolved against.
func (s Source) ResolveBase() string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return s.URL
}

// Cap returns the per-source item cap, falling back to def when unset.
func (s Source) Cap(def int) int {
	if s.ItemCap > 0 {
		return s.ItemCap
	}
	return def
}

// WithDefaults fills in markup selectors left empty.
func (s Source) WithDefaults() Source {
	if s.Mode == ModeMarkup && strings.TrimSpace(s.Selectors.Item) == "" {
		s.Selectors.Item = DefaultItemSelector
	}
	return s
}

// ValidateRoster checks roster-wide invariants. Any violation is fatal to a run.
func ValidateRoster(sources []Source) error {
	if len(sources) == 0 {
		return &ConfigurationError{Field: "sources", Reason: "at least one source is required"}
	}
	seen := make(map[string]struct{}, len(sources))
	for i, src := range sources {
		field := fmt.Sprintf("sources[%d]", i)
		if strings.TrimSpace(src.ID) == "" {
			return &ConfigurationError{Field: field + ".id", Reason: "must be set"}
		}
		if _, dup := seen[src.ID]; dup {
			return &ConfigurationError{Field: field + ".id", Reason: fmt.Sprintf("duplicate source id %q", src.ID)}
		}
		seen[src.ID] = struct{}{}
		if err := validateSource(field, src); err != nil {
			return err
		}
	}
	return nil
}

func validateSource(field string, src Source) error {
	switch src.Mode {
	case ModeMarkup, ModeFeed:
	default:
		return &ConfigurationError{Field: field + ".mode", Reason: fmt.Sprintf("unknown mode %q", src.Mode)}
	}
	if !src.Category.Valid() {
		return &ConfigurationError{Field: field + ".category", Reason: fmt.Sprintf("unknown category %q", src.Category)}
	}
	urls := []struct {
		name     string
		raw      string
		required bool
	}{
		{"url", src.URL, true},
		{"base_url", src.BaseURL, false},
		{"fallback_url", src.FallbackURL, false},
	}
	for _, u := range urls {
		if u.raw == "" && !u.required {
			continue
		}
		if !isAbsoluteHTTP(u.raw) {
			return &ConfigurationError{Field: field + "." + u.name, Reason: fmt.Sprintf("%q is not an absolute http(s) url", u.raw)}
		}
	}
	if src.Mode == ModeFeed && src.FallbackURL != "" {
		return &ConfigurationError{Field: field + ".fallback_url", Reason: "only markup sources support a fallback page"}
	}
	if src.ItemCap < 0 {
		return &ConfigurationError{Field: field + ".item_cap", Reason: "must be >= 0"}
	}
	if src.MinTitleLength < 0 {
		return &ConfigurationError{Field: field + ".min_title_length", Reason: "must be >= 0"}
	}
	return nil
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
