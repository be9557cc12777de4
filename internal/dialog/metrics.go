package dialog

import "github.com/prometheus/client_golang/prometheus"

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portraitd",
			Subsystem: "pipeline",
			Name:      "generations_total",
			Help:      "Generation pipeline runs by result",
		},
		[]string{"result"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "portraitd",
			Subsystem: "pipeline",
			Name:      "remote_generation_seconds",
			Help:      "Duration of remote image generation calls in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	backgroundRemovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portraitd",
			Subsystem: "pipeline",
			Name:      "background_removals_total",
			Help:      "Background removal attempts by purpose and result",
		},
		[]string{"purpose", "result"},
	)

	openDialogs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portraitd",
			Subsystem: "pipeline",
			Name:      "open_dialogs",
			Help:      "Generation dialogs currently open",
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration, backgroundRemovalsTotal, openDialogs)
}

// Result labels for generationsTotal.
const (
	resultSuccess   = "success"
	resultFailed    = "failed"
	resultCancelled = "cancelled"
	resultBusy      = "busy"
	resultInvalid   = "invalid"
)
