// Package metrics defines Prometheus metrics for the feed subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VacuumMetrics holds metrics for the vacuum sweep.
type VacuumMetrics struct {
	// SweepsTotal counts completed sweeps, labelled by outcome.
	SweepsTotal *prometheus.CounterVec

	// SweepDuration observes wall time per sweep in seconds.
	SweepDuration prometheus.Histogram

	// OwnersSweptTotal counts owners whose keys were deleted.
	OwnersSweptTotal prometheus.Counter

	// KeysDeletedTotal counts feed and shadow keys deleted.
	KeysDeletedTotal prometheus.Counter

	// OwnerFailuresTotal counts owners whose cleanup failed and was
	// skipped, labelled by failure kind.
	OwnerFailuresTotal *prometheus.CounterVec

	// LastSweepUnixSeconds is the completion time of the last sweep.
	LastSweepUnixSeconds prometheus.Gauge
}

// NewVacuumMetrics creates vacuum metrics registered with the default
// registry via promauto.
func NewVacuumMetrics() *VacuumMetrics {
	return newVacuumMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewVacuumMetricsWithRegistry creates vacuum metrics registered with a
// custom registry. Useful for tests to avoid default-registry conflicts.
func NewVacuumMetricsWithRegistry(reg prometheus.Registerer) *VacuumMetrics {
	return newVacuumMetrics(promauto.With(reg))
}

func newVacuumMetrics(factory promauto.Factory) *VacuumMetrics {
	return &VacuumMetrics{
		SweepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vireo",
				Subsystem: "vacuum",
				Name:      "sweeps_total",
				Help:      "Completed vacuum sweeps by outcome (ok, error, dry_run).",
			},
			[]string{"outcome"},
		),
		SweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "vireo",
				Subsystem: "vacuum",
				Name:      "sweep_duration_seconds",
				Help:      "Wall time per vacuum sweep.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		OwnersSweptTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vireo",
				Subsystem: "vacuum",
				Name:      "owners_swept_total",
				Help:      "Owners whose feed keys were deleted by the sweep.",
			},
		),
		KeysDeletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vireo",
				Subsystem: "vacuum",
				Name:      "keys_deleted_total",
				Help:      "Feed and reblog shadow keys deleted by the sweep.",
			},
		),
		OwnerFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vireo",
				Subsystem: "vacuum",
				Name:      "owner_failures_total",
				Help:      "Owners skipped after cleanup failures, by kind (resolution, deletion).",
			},
			[]string{"kind"},
		),
		LastSweepUnixSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vireo",
				Subsystem: "vacuum",
				Name:      "last_sweep_timestamp_seconds",
				Help:      "Unix time of the last completed sweep.",
			},
		),
	}
}

// RecordSweep records one completed sweep.
func (m *VacuumMetrics) RecordSweep(outcome string, durationSeconds float64, ownersSwept, keysDeleted int, completedAtUnix float64) {
	m.SweepsTotal.WithLabelValues(outcome).Inc()
	m.SweepDuration.Observe(durationSeconds)
	m.OwnersSweptTotal.Add(float64(ownersSwept))
	m.KeysDeletedTotal.Add(float64(keysDeleted))
	m.LastSweepUnixSeconds.Set(completedAtUnix)
}

// RecordOwnerFailure records one skipped owner by failure kind.
func (m *VacuumMetrics) RecordOwnerFailure(kind string) {
	m.OwnerFailuresTotal.WithLabelValues(kind).Inc()
}
