package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(autosaveJobsTotal, snapshotsPrunedTotal) }

var (
	autosaveJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playground_autosave_jobs_total",
			Help: "Autosave snapshot jobs, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed', 'dropped'
	)

	snapshotsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playground_snapshots_pruned_total",
			Help: "Snapshots removed by the retention janitor.",
		},
	)
)

func IncAutosaveJob(status string) {
	autosaveJobsTotal.WithLabelValues(norm(status)).Inc()
}

func AddSnapshotsPruned(n int64) {
	snapshotsPrunedTotal.Add(float64(n))
}
