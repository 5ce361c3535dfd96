package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var buildInfoOnce sync.Once

// InitBuildInfo publishes sponsorchain_build_info{version,commit} = 1 so
// dashboards can correlate behavior changes with deploys. Safe to call more
// than once; only the first call registers the gauge.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sponsorchain_build_info",
			Help: "Build metadata for the running binary.",
			ConstLabels: prometheus.Labels{
				"version": version,
				"commit":  commit,
			},
		})
		g.Set(1)
		prometheus.MustRegister(g)
	})
}
