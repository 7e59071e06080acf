package lifecycle

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgellm",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total lifecycle transitions, labelled by the phase entered",
		},
		[]string{"phase"},
	)

	downloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgellm",
			Subsystem: "lifecycle",
			Name:      "downloads_total",
			Help:      "Total model downloads by outcome",
		},
		[]string{"outcome"},
	)

	loadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgellm",
			Subsystem: "lifecycle",
			Name:      "loads_total",
			Help:      "Total engine loads by outcome",
		},
		[]string{"outcome"},
	)

	activeModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgellm",
			Subsystem: "lifecycle",
			Name:      "active_models",
			Help:      "Number of currently loaded models (0 or 1)",
		},
	)
)

func init() {
	prometheus.MustRegister(transitionsTotal, downloadsTotal, loadsTotal, activeModels)
}
