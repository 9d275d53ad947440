package metrics

import (
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics implements ports.StageObserver.
type EngineMetrics struct {
	stageDuration   *prometheus.HistogramVec
	confidenceLevel *prometheus.CounterVec
	recommendation  *prometheus.CounterVec
	failureRisk     prometheus.Histogram
	secondaryFetch  *prometheus.CounterVec
	memoryErrors    *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
}

func NewEngineMetrics(registerer prometheus.Registerer) *EngineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Retrieval pipeline stage duration in seconds by stage and status.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"stage", "status"},
	)
	confidenceLevel := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "confidence_level_total",
			Help:      "Scored retrievals by query type and confidence level.",
		},
		[]string{"query_type", "level"},
	)
	recommendation := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "recommendation_total",
			Help:      "Scored retrievals by recommendation.",
		},
		[]string{"recommendation"},
	)
	failureRisk := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "failure_risk",
			Help:      "Distribution of predicted answer failure risk.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)
	secondaryFetch := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "secondary_fetch_total",
			Help:      "Secondary fetch attempts after failed validation by status.",
		},
		[]string{"status"},
	)
	memoryErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "memory_errors_total",
			Help:      "Retrieval memory failures absorbed by the pipeline.",
		},
		[]string{"operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Set to 1 for the current non-closed breaker state of an operation.",
		},
		[]string{"operation", "state"},
	)

	registerer.MustRegister(stageDuration, confidenceLevel, recommendation, failureRisk, secondaryFetch, memoryErrors, breakerState)

	return &EngineMetrics{
		stageDuration:   stageDuration,
		confidenceLevel: confidenceLevel,
		recommendation:  recommendation,
		failureRisk:     failureRisk,
		secondaryFetch:  secondaryFetch,
		memoryErrors:    memoryErrors,
		breakerState:    breakerState,
	}
}

func (m *EngineMetrics) ObserveStage(stage string, status domain.StageStatus, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage, string(status)).Observe(duration.Seconds())
}

func (m *EngineMetrics) ObserveResult(queryType domain.QueryType, result domain.RetrievalResult) {
	if queryType == "" {
		queryType = domain.QueryGeneral
	}
	m.confidenceLevel.WithLabelValues(string(queryType), string(result.Confidence.Level)).Inc()
	m.recommendation.WithLabelValues(string(result.Confidence.Recommendation)).Inc()
	m.failureRisk.Observe(result.Failure.RiskLevel)
}

func (m *EngineMetrics) ObserveSecondaryFetch(status string) {
	if status == "" {
		status = "unknown"
	}
	m.secondaryFetch.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveMemoryError(operation string) {
	m.memoryErrors.WithLabelValues(operation).Inc()
}

// ObserveBreakerState tracks breaker transitions; states are gobreaker's
// lower-case names ("closed", "half-open", "open").
func (m *EngineMetrics) ObserveBreakerState(operation, from, to string) {
	m.breakerState.WithLabelValues(operation, from).Set(0)
	if to == "closed" {
		return
	}
	m.breakerState.WithLabelValues(operation, to).Set(1)
}
