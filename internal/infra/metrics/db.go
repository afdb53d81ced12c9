package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(snapshotPoolConns, snapshotPoolAcquires) }

// PoolStats is the subset of the snapshot database pool state we export.
type PoolStats struct {
	Max, Total, Idle, Acquired int32
	// Cumulative counts since the pool opened.
	Acquires, EmptyAcquires int64
}

var (
	snapshotPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playground_snapshot_db_connections",
			Help: "Snapshot database pool connections by state (max|total|idle|acquired).",
		},
		[]string{"state"},
	)

	snapshotPoolAcquires = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playground_snapshot_db_acquires",
			Help: "Cumulative pool acquires; kind=empty counts those that had to wait for a connection.",
		},
		[]string{"kind"},
	)
)

func ObservePool(s PoolStats) {
	for state, v := range map[string]int32{
		"max":      s.Max,
		"total":    s.Total,
		"idle":     s.Idle,
		"acquired": s.Acquired,
	} {
		snapshotPoolConns.WithLabelValues(state).Set(float64(v))
	}
	snapshotPoolAcquires.WithLabelValues("all").Set(float64(s.Acquires))
	snapshotPoolAcquires.WithLabelValues("empty").Set(float64(s.EmptyAcquires))
}
