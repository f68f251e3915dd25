package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the moat service
type Metrics struct {
	// Pattern metrics
	PatternsRecorded *prometheus.CounterVec
	PatternMatches   *prometheus.CounterVec
	PreventionRules  prometheus.Counter

	// Safety metrics
	SafetyChecks  *prometheus.CounterVec
	SafetyScores  *prometheus.HistogramVec
	SafetyBlocked prometheus.Counter

	// Moat scoring metrics
	ScoreRequests *prometheus.CounterVec

	// System metrics
	DatabaseConnections prometheus.Gauge
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	EventsPublished     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			PatternsRecorded: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moat_patterns_recorded_total",
					Help: "Total number of pattern reports recorded",
				},
				[]string{"kind", "result"}, // kind: failure, success; result: created, updated
			),
			PatternMatches: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moat_pattern_matches_total",
					Help: "Total number of pattern matches detected",
				},
				[]string{"class"}, // class: exact, similar
			),
			PreventionRules: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "moat_prevention_rule_requests_total",
					Help: "Total number of prevention rule retrievals",
				},
			),

			SafetyChecks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moat_safety_checks_total",
					Help: "Total number of safety scans",
				},
				[]string{"verdict"}, // verdict: passed, failed, blocked
			),
			SafetyScores: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "moat_safety_score",
					Help:    "Distribution of safety check scores (0-100)",
					Buckets: prometheus.LinearBuckets(0, 10, 11),
				},
				[]string{"check"}, // check: security, quality
			),
			SafetyBlocked: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "moat_safety_blocked_total",
					Help: "Total number of outputs blocked by safety checks",
				},
			),

			ScoreRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moat_score_requests_total",
					Help: "Total number of moat score computations",
				},
				[]string{"kind"}, // kind: lock_in, churn, infrastructure, memory_value
			),

			DatabaseConnections: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "moat_database_connections",
					Help: "Number of active database connections",
				},
			),
			CacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "moat_cache_hits_total",
					Help: "Total number of cache hits",
				},
			),
			CacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "moat_cache_misses_total",
					Help: "Total number of cache misses",
				},
			),
			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moat_events_published_total",
					Help: "Total number of events published",
				},
				[]string{"subject"},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moat_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "moat_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
		}
	})

	return sharedMetrics
}

// RecordPattern records one pattern report outcome
func (m *Metrics) RecordPattern(kind, result string) {
	m.PatternsRecorded.WithLabelValues(kind, result).Inc()
}

// RecordPatternMatch records a detected pattern match
func (m *Metrics) RecordPatternMatch(class string) {
	m.PatternMatches.WithLabelValues(class).Inc()
}

// RecordSafetyCheck records one safety scan verdict and its scores
func (m *Metrics) RecordSafetyCheck(passed, blocked bool, securityScore, qualityScore int) {
	verdict := "failed"
	switch {
	case blocked:
		verdict = "blocked"
		m.SafetyBlocked.Inc()
	case passed:
		verdict = "passed"
	}
	m.SafetyChecks.WithLabelValues(verdict).Inc()
	m.SafetyScores.WithLabelValues("security").Observe(float64(securityScore))
	m.SafetyScores.WithLabelValues("quality").Observe(float64(qualityScore))
}

// RecordScoreRequest records a moat score computation
func (m *Metrics) RecordScoreRequest(kind string) {
	m.ScoreRequests.WithLabelValues(kind).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
