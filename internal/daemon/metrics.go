package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics is the set of Prometheus series this daemon exposes, grouped so
// Run's collaborators can update them without reaching into global state.
type metrics struct {
	neighborStateChanges prometheus.Counter
	lsasOriginated        *prometheus.CounterVec
	lsasFlooded           prometheus.Counter
	spfRuns               *prometheus.CounterVec
	spfDuration           *prometheus.HistogramVec
	routesInstalled       prometheus.Gauge
}

func newMetrics() *metrics {
	const ns = "ospfd"
	return &metrics{
		neighborStateChanges: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "neighbor_state_changes_total",
			Help:      "Count of neighbor FSM state transitions observed.",
		}),
		lsasOriginated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "lsas_originated_total",
			Help:      "Count of self-originated LSAs by type.",
		}, []string{"type"}),
		lsasFlooded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "lsas_flooded_total",
			Help:      "Count of LSAs passed to the reliable flooding procedure.",
		}),
		spfRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "spf_runs_total",
			Help:      "Count of SPF computations run, by area.",
		}, []string{"area"}),
		spfDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "spf_duration_seconds",
			Help:      "Wall-clock duration of SPF computations, by area.",
		}, []string{"area"}),
		routesInstalled: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "routes_installed",
			Help:      "Number of routes currently installed to the kernel FIB.",
		}),
	}
}
