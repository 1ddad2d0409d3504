package snap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/satyaLM/override-api/internal/types"
)

const metricsNamespace = "override_api"

// Provider attempt outcomes.
const (
	outcomeMatch   = "match"
	outcomeEmpty   = "empty"
	outcomeError   = "error"
	outcomeInvalid = "invalid"
)

// Metrics holds the Prometheus collectors for the snapping engine.
type Metrics struct {
	ProviderAttempts *prometheus.CounterVec   // labels: provider, outcome={match,empty,error,invalid}
	ProviderDuration *prometheus.HistogramVec // labels: provider
	MatchRadius      prometheus.Histogram
	Outcomes         *prometheus.CounterVec // labels: category, method
	RoadCache        *prometheus.CounterVec // labels: source, result={hit,miss}
}

// NewMetrics creates the engine metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.ProviderAttempts,
		m.ProviderDuration,
		m.MatchRadius,
		m.Outcomes,
		m.RoadCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered collectors so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "road_provider_attempts_total",
			Help:      "Road provider queries by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "road_provider_duration_seconds",
			Help:      "Road provider query duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"provider"}),
		MatchRadius: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "road_match_radius_meters",
			Help:      "Search radius at which a road match was found.",
			Buckets:   []float64{50, 75, 112.5, 168.75, 200},
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "snap_outcomes_total",
			Help:      "Per-item snap outcomes by category and method.",
		}, []string{"category", "method"}),
		RoadCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "road_cache_total",
			Help:      "Road query cache lookups by source and result.",
		}, []string{"source", "result"}),
	}
}

func (m *Metrics) observeAttempt(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) observeMatch(radiusM float64) {
	if m == nil {
		return
	}
	m.MatchRadius.Observe(radiusM)
}

// ObserveOutcome counts one final per-item method for category.
func (m *Metrics) ObserveOutcome(category types.Category, method types.SnapMethod) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(string(category), string(method)).Inc()
}

// ObserveCache records a road cache lookup.
func (m *Metrics) ObserveCache(source string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RoadCache.WithLabelValues(source, result).Inc()
}
