package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StoreMetrics records feed store operation latency and outcome.
// It implements feedstore.MetricsRecorder.
type StoreMetrics struct {
	// OpDuration observes per-operation latency, labelled by
	// operation and outcome.
	OpDuration *prometheus.HistogramVec
}

// NewStoreMetrics creates store metrics registered with the default registry.
func NewStoreMetrics() *StoreMetrics {
	return newStoreMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewStoreMetricsWithRegistry creates store metrics registered with a
// custom registry.
func NewStoreMetricsWithRegistry(reg prometheus.Registerer) *StoreMetrics {
	return newStoreMetrics(promauto.With(reg))
}

func newStoreMetrics(factory promauto.Factory) *StoreMetrics {
	return &StoreMetrics{
		OpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vireo",
				Subsystem: "feedstore",
				Name:      "op_duration_seconds",
				Help:      "Feed store operation latency by operation and outcome.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"op", "outcome"},
		),
	}
}

// RecordOp records one store operation.
func (m *StoreMetrics) RecordOp(op string, durationSeconds float64, success bool) {
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	m.OpDuration.WithLabelValues(op, outcome).Observe(durationSeconds)
}
