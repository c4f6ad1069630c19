package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors recorded by prune runs and the HTTP API.
type Metrics struct {
	Runs             *prometheus.CounterVec
	SnapshotsExpired *prometheus.CounterVec
	SnapshotsDeleted *prometheus.CounterVec
	DeleteFailures   *prometheus.CounterVec
	SnapshotsKept    *prometheus.GaugeVec
	RunDuration      prometheus.Histogram
	HTTPDuration     *prometheus.HistogramVec
}

// NewMetrics registers every collector on reg. Pass prometheus.NewRegistry()
// in tests to avoid clashing with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfg_prune_runs_total",
			Help: "Prune passes per tier by result (pruned, skipped, failed).",
		}, []string{"tier", "result"}),

		SnapshotsExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfg_snapshots_expired_total",
			Help: "Snapshots classified as expired.",
		}, []string{"tier"}),

		SnapshotsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfg_snapshots_deleted_total",
			Help: "Expired snapshots actually removed.",
		}, []string{"tier"}),

		DeleteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sfg_delete_failures_total",
			Help: "Expired snapshots that could not be removed.",
		}, []string{"tier"}),

		SnapshotsKept: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sfg_snapshots_retained",
			Help: "Snapshots retained after the most recent pass of a tier.",
		}, []string{"tier"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfg_run_duration_seconds",
			Help:    "Duration of a full prune run across all tiers.",
			Buckets: prometheus.DefBuckets,
		}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sfg_http_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
