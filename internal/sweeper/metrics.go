package sweeper

import "github.com/prometheus/client_golang/prometheus"

var (
	runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_runs_total",
		Help: "Completed sweep cycles.",
	})

	removedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweeper_removed_total",
			Help: "Records removed or changed by the sweeper, by kind.",
		},
		[]string{"kind"},
	)

	deletionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_deletion_errors_total",
		Help: "Scheduled deletions that failed and will be retried next cycle.",
	})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sweeper_run_duration_seconds",
		Help:    "Duration of one sweep cycle.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(runsTotal, removedTotal, deletionErrors, runDuration)
}
