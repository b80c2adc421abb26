// Package metrics exposes Prometheus collectors for the aggregator.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Source outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

var (
	fetchAttemptsTotal       *prometheus.CounterVec
	fetchDurationSeconds     *prometheus.HistogramVec
	sourceResultsTotal       *prometheus.CounterVec
	recordsRejectedTotal     *prometheus.CounterVec
	batchRecords             prometheus.Gauge
	batchDuplicatesTotal     prometheus.Counter
	batchDurationSeconds     prometheus.Histogram
	activeWorkers            prometheus.Gauge
	rateLimitDelaysSeconds   *prometheus.HistogramVec
	batchLastSuccessUnixtime prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "news_fetch_attempts_total",
				Help: "Total number of network fetch attempts, labeled by source.",
			},
			[]string{"source"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "news_fetch_duration_seconds",
				Help:    "Histogram of per-source fetch task durations, retries included.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		sourceResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "news_source_results_total",
				Help: "Terminal state of each source fetch task, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		recordsRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "news_records_rejected_total",
				Help: "Candidate records dropped by the validator, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		batchRecords = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "news_batch_records",
				Help: "Number of records in the most recent batch.",
			},
		)

		batchDuplicatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "news_batch_duplicates_total",
				Help: "Records dropped during merging because their link was already kept.",
			},
		)

		batchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "news_batch_duration_seconds",
				Help:    "Histogram of end-to-end batch durations.",
				Buckets: []float64{1, 2, 5, 10, 30, 60, 120},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "news_active_workers",
				Help: "Number of workers currently running a fetch task.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "news_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		batchLastSuccessUnixtime = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "news_batch_last_success_timestamp_seconds",
				Help: "Unix time of the last batch that completed.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveAttempt counts one network attempt for a source.
func ObserveAttempt(source string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(source).Inc()
}

// ObserveSource records the terminal state of a fetch task.
func ObserveSource(source, outcome string, duration time.Duration) {
	Init()
	sourceResultsTotal.WithLabelValues(source, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRejected counts a record dropped by the validator.
func ObserveRejected(source, reason string) {
	Init()
	recordsRejectedTotal.WithLabelValues(source, reason).Inc()
}

// ObserveBatch records the size and duration of a finished batch.
func ObserveBatch(total, duplicates int, duration time.Duration, finished time.Time) {
	Init()
	batchRecords.Set(float64(total))
	batchDuplicatesTotal.Add(float64(duplicates))
	batchDurationSeconds.Observe(duration.Seconds())
	batchLastSuccessUnixtime.Set(float64(finished.Unix()))
}

// ObserveRateLimitDelay records how long a request waited for its host's token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(host)).Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// Push sends the default registry to a Prometheus Pushgateway. It is a no-op
// when gatewayURL is empty.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	Init()
	if job == "" {
		job = "newsagg"
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
