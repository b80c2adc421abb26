package validate

import (
	"regexp"
	"strings"
)

const regexPrefix = "re:"

// keywordBlocklist stores case-insensitive substrings and regular expressions
// derived from configuration.
type keywordBlocklist struct {
	substrings []string
	patterns   []*regexp.Regexp
}

func newKeywordBlocklist(entries ...[]string) (*keywordBlocklist, error) {
	bl := &keywordBlocklist{}
	seen := make(map[string]struct{})
	for _, group := range entries {
		for _, raw := range group {
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			if strings.HasPrefix(value, regexPrefix) {
				re, err := regexp.Compile("(?i)" + strings.TrimPrefix(value, regexPrefix))
				if err != nil {
					return nil, err
				}
				bl.patterns = append(bl.patterns, re)
				continue
			}
			value = strings.ToLower(value)
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			bl.substrings = append(bl.substrings, value)
		}
	}
	if len(bl.substrings) == 0 && len(bl.patterns) == 0 {
		return nil, nil
	}
	return bl, nil
}

// Match returns the first entry that matches any of the texts.
func (b *keywordBlocklist) Match(texts ...string) (string, bool) {
	if b == nil {
		return "", false
	}
	for _, text := range texts {
		lower := strings.ToLower(text)
		for _, kw := range b.substrings {
			if strings.Contains(lower, kw) {
				return kw, true
			}
		}
		for _, re := range b.patterns {
			if re.MatchString(text) {
				return re.String(), true
			}
		}
	}
	return "", false
}
