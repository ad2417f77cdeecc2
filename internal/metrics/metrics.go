// Package metrics holds the Prometheus instruments recorded by history fetches.
//
// Instruments are registered on the default registry, so serving
// promhttp.Handler() exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts page requests by method and outcome
	// ("success", "rate_limited", "error").
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobstat_pages_fetched_total",
			Help: "Total number of history page requests",
		},
		[]string{"method", "outcome"},
	)

	// TracksFetched counts records appended to fetch results.
	TracksFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobstat_tracks_fetched_total",
			Help: "Total number of history records fetched",
		},
		[]string{"method"},
	)

	// DuplicatesDropped counts records dropped at page boundaries.
	DuplicatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobstat_duplicates_dropped_total",
			Help: "Total number of records dropped because the previous page already held them",
		},
		[]string{"method"},
	)

	// RateLimitRetries counts retries caused by throttling.
	RateLimitRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrobstat_rate_limit_retries_total",
			Help: "Total number of page retries after a rate-limit response",
		},
		[]string{"method"},
	)

	// FetchDuration observes whole FetchAll runs.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrobstat_fetch_duration_seconds",
			Help:    "Duration of complete history fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"method", "status"},
	)
)

// Fetch outcome and status label values.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"

	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)
