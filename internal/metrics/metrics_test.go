package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := fetchAttemptsTotal
	Init()
	require.NotNil(t, first)
	assert.Same(t, first, fetchAttemptsTotal)
}

func TestObserveHelpers(t *testing.T) {
	Init()
	attempts := fetchAttemptsTotal.WithLabelValues("metrics-test-src")
	before := testutil.ToFloat64(attempts)
	ObserveAttempt("metrics-test-src")
	ObserveAttempt("metrics-test-src")
	assert.InDelta(t, before+2, testutil.ToFloat64(attempts), 0.001)

	ObserveSource("metrics-test-src", OutcomeFailed, 2*time.Second)
	assert.InDelta(t, 1, testutil.ToFloat64(sourceResultsTotal.WithLabelValues("metrics-test-src", OutcomeFailed)), 0.001)

	ObserveRejected("metrics-test-src", "title_too_short")
	assert.InDelta(t, 1, testutil.ToFloat64(recordsRejectedTotal.WithLabelValues("metrics-test-src", "title_too_short")), 0.001)

	finished := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ObserveBatch(7, 2, time.Second, finished)
	assert.InDelta(t, 7, testutil.ToFloat64(batchRecords), 0.001)
	assert.InDelta(t, float64(finished.Unix()), testutil.ToFloat64(batchLastSuccessUnixtime), 0.001)

	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	assert.InDelta(t, 1, testutil.ToFloat64(activeWorkers), 0.001)
	DecActiveWorkers()
}

func TestPushNoGateway(t *testing.T) {
	require.NoError(t, Push(context.Background(), "", "job"))
}

func TestPushSendsToGateway(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ObserveAttempt("push-src")
	require.NoError(t, Push(context.Background(), srv.URL, "newsagg-test"))
	assert.True(t, strings.HasPrefix(path, "/metrics/job/newsagg-test"), path)
}

func TestPushGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := Push(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
