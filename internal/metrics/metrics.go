// Package metrics holds the Prometheus collectors for the recommendation
// pipeline and its HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youchews_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "youchews_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Scorer
	ScorerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youchews_scorer_calls_total",
			Help: "Scorer invocations by driver and outcome (ok or failure kind)",
		},
		[]string{"driver", "outcome"},
	)

	ScorerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "youchews_scorer_duration_seconds",
			Help:    "Scorer call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"driver"},
	)

	// Pipeline
	CandidatesConsidered = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "youchews_candidates_considered",
			Help:    "Candidate set size per recommendation request",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	CatalogCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youchews_catalog_cache_total",
			Help: "Catalog cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	FeedbackEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "youchews_feedback_events_total",
			Help: "Feedback events by result (applied, skipped)",
		},
		[]string{"result"},
	)
)

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordScorerCall records one scorer call. An empty outcome means success.
func RecordScorerCall(driver, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "ok"
	}
	ScorerCallsTotal.WithLabelValues(driver, outcome).Inc()
	ScorerDuration.WithLabelValues(driver).Observe(duration.Seconds())
}

// RecordCandidates records the size of a candidate set.
func RecordCandidates(n int) {
	CandidatesConsidered.Observe(float64(n))
}

// RecordCacheLookup records a catalog cache lookup result.
func RecordCacheLookup(result string) {
	CatalogCacheTotal.WithLabelValues(result).Inc()
}

// RecordFeedback records the outcome of a feedback batch.
func RecordFeedback(applied, skipped int) {
	FeedbackEventsTotal.WithLabelValues("applied").Add(float64(applied))
	FeedbackEventsTotal.WithLabelValues("skipped").Add(float64(skipped))
}
