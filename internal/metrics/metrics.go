package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metrics variables - these will be initialized by InitMetrics
	DelayRequestsTotal   *prometheus.CounterVec
	DelayRequestDuration *prometheus.HistogramVec
	CancellationsTotal   *prometheus.CounterVec
	InflightWaits        prometheus.Gauge
	OutcomeEventsTotal   *prometheus.CounterVec
	RateLimitExceeded    *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
)

// InitMetrics initializes metrics with a specific registry
func InitMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return fmt.Errorf("registry cannot be nil")
	}

	factory := promauto.With(reg)

	DelayRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delay_requests_total",
			Help: "Total number of delay requests by outcome status, variant and server",
		},
		[]string{"status", "variant", "server"},
	)

	DelayRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delay_request_duration_seconds",
			Help:    "Duration of delay requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"variant"},
	)

	CancellationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delay_cancellations_total",
			Help: "Total number of cancelled waits by trigger cause",
		},
		[]string{"cause"},
	)

	InflightWaits = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "delay_inflight_waits",
			Help: "Number of waits currently in flight",
		},
	)

	OutcomeEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delay_outcome_events_total",
			Help: "Total number of outcome events published, by publish status",
		},
		[]string{"status"},
	)

	RateLimitExceeded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delay_rate_limit_exceeded_total",
			Help: "Total number of requests that exceeded rate limits",
		},
		[]string{"type"},
	)

	ErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delay_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)

	return nil
}

// Helper functions for recording metrics

// RecordRequest records a finished delay request
func RecordRequest(status, variant, server string) {
	DelayRequestsTotal.WithLabelValues(status, variant, server).Inc()
}

// RecordDuration records how long a delay request took
func RecordDuration(variant string, seconds float64) {
	DelayRequestDuration.WithLabelValues(variant).Observe(seconds)
}

// RecordCancellation records a cancelled wait by trigger cause
func RecordCancellation(cause string) {
	CancellationsTotal.WithLabelValues(cause).Inc()
}

// RecordOutcomeEvent records an outcome event publish attempt
func RecordOutcomeEvent(status string) {
	OutcomeEventsTotal.WithLabelValues(status).Inc()
}
