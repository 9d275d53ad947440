package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics implements ports.OutcomeWorkerObserver.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	persistTotal    *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
	persistInFlight prometheus.Gauge
	purgedRows      prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	persistTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "outcomes_persisted_total",
			Help:      "Total consumed outcome events by persistence status.",
		},
		[]string{"service", "status"},
	)
	persistDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "outcome_persist_duration_seconds",
			Help:      "Outcome persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	persistInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "outcome_persist_in_flight",
			Help:      "Number of outcome events being persisted.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	purgedRows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "memory_purged_rows_total",
			Help:      "Retrieval memory rows removed by the retention purge.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(persistTotal, persistDuration, persistInFlight, purgedRows)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		persistTotal:    persistTotal,
		persistDuration: persistDuration,
		persistInFlight: persistInFlight,
		purgedRows:      purgedRows,
	}
}

// Registerer exposes the worker registry for breaker-state collectors.
func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartOutcome() {
	m.persistInFlight.Inc()
}

func (m *WorkerMetrics) FinishOutcome(duration time.Duration, err error) {
	m.persistInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.persistTotal.WithLabelValues(m.service, status).Inc()
	m.persistDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObservePurged(rows int64) {
	if rows <= 0 {
		return
	}
	m.purgedRows.Add(float64(rows))
}
