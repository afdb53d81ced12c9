package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(buildInfo, startTime) }

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playground_build_info",
			Help: "Always 1; labels carry the binary version, commit and Go toolchain.",
		},
		[]string{"version", "commit", "goversion"},
	)

	startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playground_start_time_seconds",
			Help: "Unix time the server process finished booting.",
		},
	)
)

// SetBuildInfo stamps the running binary. Empty values are reported as
// "unknown".
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(norm(version), norm(commit), runtime.Version()).Set(1)
	startTime.Set(float64(time.Now().Unix()))
}
