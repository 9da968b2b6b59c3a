// Package metrics exposes Prometheus instrumentation for the matching
// pipeline. A long analysis run serves these on /metrics so progress and
// degradation (gated planes, skipped events) are observable from outside.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	samplesLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shockfront_craft_samples_loaded",
			Help: "Samples loaded per spacecraft in the current window.",
		},
		[]string{"craft"},
	)

	alignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shockfront_alignments_total",
			Help: "DTW alignments run, by refinement pass.",
		},
		[]string{"pass"},
	)

	alignmentSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shockfront_alignment_duration_seconds",
			Help:    "Wall time of a single DTW alignment.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shockfront_events_total",
			Help: "Triangulated events by outcome (solved, reused, skipped).",
		},
		[]string{"outcome"},
	)

	predictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shockfront_predictions_total",
			Help: "Arrival predictions issued for target spacecraft.",
		},
	)
)

func init() {
	prometheus.MustRegister(samplesLoaded)
	prometheus.MustRegister(alignmentsTotal)
	prometheus.MustRegister(alignmentSeconds)
	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(predictionsTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetCraftSamples records how many samples a spacecraft contributed.
func SetCraftSamples(craft string, n int) {
	samplesLoaded.WithLabelValues(craft).Set(float64(n))
}

// ObserveAlignment records one completed DTW alignment.
func ObserveAlignment(pass string, d time.Duration) {
	alignmentsTotal.WithLabelValues(pass).Inc()
	alignmentSeconds.Observe(d.Seconds())
}

// CountEvent records a triangulation outcome.
func CountEvent(outcome string) {
	eventsTotal.WithLabelValues(outcome).Inc()
}

// CountPrediction records one issued arrival prediction.
func CountPrediction() {
	predictionsTotal.Inc()
}
