package news

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidURL marks links that cannot be normalized into absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

// ErrDisallowed marks URLs a site's robots.txt forbids fetching.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// ErrRejected marks records filtered out by the validator.
var ErrRejected = errors.New("record rejected")

// RejectionError explains why a record was dropped.
type RejectionError struct {
	Reason string
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("record rejected: %s", e.Reason)
	}
	return fmt.Sprintf("record rejected: %s (%s)", e.Reason, e.Detail)
}

// Unwrap lets errors.Is match ErrRejected.
func (e *RejectionError) Unwrap() error {
	return ErrRejected
}

// StatusError is a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// ParseError is malformed markup or feed content. It is never retried.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FetchError is a source that yielded nothing this run.
type FetchError struct {
	Source    string
	URL       string
	Attempts  int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("fetch %s (%s) failed after %d attempt(s), %s: %v", e.Source, e.URL, e.Attempts, kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ConfigurationError aborts a run before any task is dispatched.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
