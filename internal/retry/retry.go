// Package retry wraps a single blocking network call with bounded,
// deterministic linear backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

// Policy controls how many times an operation is re-attempted.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	// Sleep waits between attempts; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry observes each failed attempt that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Backoff returns the wait before attempt+1. Attempts are 1-based.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Delay * time.Duration(attempt)
}

// Do invokes op up to MaxRetries+1 times and returns the number of attempts made.
// The in-flight attempt runs on a context that ignores cancellation of ctx, so a
// shutdown lets it finish and then abandons the remaining attempts.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	attemptCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && ctx.Err() != nil {
			return attempt - 1, lastErr
		}
		err := op(attemptCtx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == maxAttempts {
			return attempt, err
		}
		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

// IsTransient classifies an error as worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, news.ErrInvalidURL) || errors.Is(err, news.ErrDisallowed) {
		return false
	}
	var parseErr *news.ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	var statusErr *news.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	// Connection errors, timeouts and unclassified transport failures.
	return true
}

// Fetch runs op under the policy and reports exhaustion as a *news.FetchError
// carrying the source, the URL, and the number of attempts made.
func (p Policy) Fetch(ctx context.Context, source, rawURL string, op func(ctx context.Context) error) (int, error) {
	attempts, err := p.Do(ctx, op)
	if err == nil {
		return attempts, nil
	}
	return attempts, &news.FetchError{
		Source:    source,
		URL:       rawURL,
		Attempts:  attempts,
		Transient: IsTransient(err),
		Err:       err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
