package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-aggregator/internal/news"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func failingOp(fails int, err error) (func(context.Context) error, *int) {
	calls := 0
	return func(context.Context) error {
		calls++
		if calls <= fails {
			return err
		}
		return nil
	}, &calls
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	p := Policy{MaxRetries: 3, Delay: time.Second, Sleep: sleeper.Sleep}
	op, calls := failingOp(2, &news.StatusError{URL: "https://example.com", StatusCode: 500})

	attempts, err := p.Do(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
}

func TestDoExhaustsRetries(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	p := Policy{MaxRetries: 3, Delay: time.Millisecond, Sleep: sleeper.Sleep}
	op, calls := failingOp(10, &net.OpError{Op: "dial", Err: errors.New("connection refused")})

	attempts, err := p.Do(context.Background(), op)
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, *calls)
	assert.Len(t, sleeper.waits, 3)
}

func TestDoDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	for _, perm := range []error{
		&news.StatusError{URL: "https://example.com", StatusCode: 404},
		&news.ParseError{URL: "https://example.com/feed", Err: errors.New("unexpected EOF")},
		fmt.Errorf("resolve: %w", news.ErrInvalidURL),
		context.Canceled,
	} {
		p := Policy{MaxRetries: 3, Delay: time.Millisecond, Sleep: (&recordingSleeper{}).Sleep}
		op, calls := failingOp(10, perm)
		attempts, err := p.Do(context.Background(), op)
		require.Error(t, err)
		assert.Equal(t, 1, attempts, perm.Error())
		assert.Equal(t, 1, *calls, perm.Error())
	}
}

func TestDoStopsRetryingWhenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var seen []bool
	op := func(attemptCtx context.Context) error {
		seen = append(seen, attemptCtx.Err() == nil)
		cancel()
		return &news.StatusError{URL: "https://example.com", StatusCode: 503}
	}
	p := Policy{MaxRetries: 5, Delay: time.Hour}

	start := time.Now()
	attempts, err := p.Do(ctx, op)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []bool{true}, seen, "in-flight attempt must not observe cancellation")
	assert.Less(t, time.Since(start), time.Minute)
}

func TestDoRealSleepDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: 1, Delay: 20 * time.Millisecond}
	op, _ := failingOp(1, &news.StatusError{StatusCode: 502})

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			opCopy, _ := failingOp(1, &news.StatusError{StatusCode: 502})
			_, _ = p.Do(context.Background(), opCopy)
		}()
	}
	wg.Wait()
	attempts, err := p.Do(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Less(t, time.Since(start), 8*20*time.Millisecond+time.Second)
}

func TestFetchWrapsExhaustion(t *testing.T) {
	t.Parallel()

	p := Policy{MaxRetries: 2, Delay: time.Millisecond, Sleep: (&recordingSleeper{}).Sleep}
	op, _ := failingOp(10, &news.StatusError{URL: "https://example.com", StatusCode: 500})

	attempts, err := p.Fetch(context.Background(), "Unwire.hk", "https://example.com", op)
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var fetchErr *news.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "Unwire.hk", fetchErr.Source)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.True(t, fetchErr.Transient)

	var statusErr *news.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(&url.Error{Op: "Get", URL: "https://x", Err: errors.New("EOF")}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(&news.StatusError{StatusCode: 429}))
	assert.False(t, IsTransient(&news.StatusError{StatusCode: 403}))
	assert.False(t, IsTransient(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, IsTransient(fmt.Errorf("visit: %w", news.ErrDisallowed)))
}

func TestBackoffIsLinear(t *testing.T) {
	t.Parallel()

	p := Policy{Delay: time.Second}
	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 3*time.Second, p.Backoff(3))
}
