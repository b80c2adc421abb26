// Package validate decides whether a candidate record is kept. Acceptance is
// a pure function of the record and the static configuration.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/realtime-news-aggregator/internal/link"
	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Rejection reasons, also used as metric labels.
const (
	ReasonInvalidLink = "invalid_link"
	ReasonTitleShort  = "title_too_short"
	ReasonTitleLong   = "title_too_long"
	ReasonBlocked     = "blocked_keyword"
	ReasonLinkRule    = "link_rule"
	ReasonSource      = "unknown_source"
)

// Rules are the global acceptance thresholds.
type Rules struct {
	MinTitleLength int
	MaxTitleLength int
	Blocklist      []string
}

// Validator applies Rules plus the per-source overrides of one source.
type Validator struct {
	sourceID    string
	minLen      int
	maxLen      int
	blocklist   *keywordBlocklist
	domainCheck string
	urlPattern  string
}

// New builds a Validator for src. Invalid blocklist patterns are configuration errors.
func New(rules Rules, src news.Source) (*Validator, error) {
	bl, err := newKeywordBlocklist(rules.Blocklist, src.ExcludeTitles)
	if err != nil {
		return nil, &news.ConfigurationError{Field: "validation.blocklist", Reason: err.Error()}
	}
	minLen := rules.MinTitleLength
	if src.MinTitleLength > 0 {
		minLen = src.MinTitleLength
	}
	return &Validator{
		sourceID:    src.ID,
		minLen:      minLen,
		maxLen:      rules.MaxTitleLength,
		blocklist:   bl,
		domainCheck: src.DomainCheck,
		urlPattern:  src.URLPattern,
	}, nil
}

// Accept reports whether the record passes every check.
func (v *Validator) Accept(r news.Record) bool {
	return v.Check(r) == nil
}

// Check returns nil or a *news.RejectionError naming the first failing check.
func (v *Validator) Check(r news.Record) error {
	canonical, err := link.Normalize(r.Link, "")
	if err != nil {
		return &news.RejectionError{Reason: ReasonInvalidLink, Detail: err.Error()}
	}

	title := strings.TrimSpace(r.Title)
	n := utf8.RuneCountInString(title)
	if n == 0 || n < v.minLen {
		return &news.RejectionError{Reason: ReasonTitleShort, Detail: fmt.Sprintf("%d < %d", n, v.minLen)}
	}
	if v.maxLen > 0 && n > v.maxLen {
		return &news.RejectionError{Reason: ReasonTitleLong, Detail: fmt.Sprintf("%d > %d", n, v.maxLen)}
	}

	if kw, hit := v.blocklist.Match(title, canonical); hit {
		return &news.RejectionError{Reason: ReasonBlocked, Detail: kw}
	}

	if v.domainCheck != "" && !strings.Contains(canonical, v.domainCheck) {
		return &news.RejectionError{Reason: ReasonLinkRule, Detail: "domain " + v.domainCheck}
	}
	if v.urlPattern != "" && !strings.Contains(canonical, v.urlPattern) {
		return &news.RejectionError{Reason: ReasonLinkRule, Detail: "pattern " + v.urlPattern}
	}

	if r.Source != v.sourceID {
		return &news.RejectionError{Reason: ReasonSource, Detail: r.Source}
	}
	return nil
}

// Reason extracts the rejection reason from an error returned by Check.
func Reason(err error) string {
	var rej *news.RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}
