// Package link canonicalizes article links. The canonical form is the sole
// deduplication key, so two links that differ only by tracking parameters,
// fragment, letter case of scheme/host, default port, or trailing slashes
// must normalize identically.
package link

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"yclid":   {},
	"_ga":     {},
	"ref_src": {},
}

// Normalize resolves raw against base and returns its canonical form.
// base may be empty when raw is already absolute.
func Normalize(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty link", news.ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", news.ErrInvalidURL, err)
	}
	if base = strings.TrimSpace(base); base != "" && !u.IsAbs() {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("%w: base %q: %v", news.ErrInvalidURL, base, err)
		}
		u = b.ResolveReference(u)
	}

	// Lowercase scheme and host
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q is not http(s)", news.ErrInvalidURL, raw)
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", news.ErrInvalidURL, raw)
	}

	// Remove default ports
	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	// Trim on the escaped form so an encoded trailing %2F survives.
	escaped := strings.TrimRight(u.EscapedPath(), "/")
	path, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("%w: %v", news.ErrInvalidURL, err)
	}
	u.Path, u.RawPath = path, escaped

	q := u.Query()
	for key := range q {
		if isTracking(key) {
			q.Del(key)
		}
	}
	// Encode sorts by key.
	u.RawQuery = q.Encode()
	u.ForceQuery = false

	return u.String(), nil
}

// Valid reports whether raw normalizes without error.
func Valid(raw string) bool {
	_, err := Normalize(raw, "")
	return err == nil
}

func isTracking(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}
