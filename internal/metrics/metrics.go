// Package metrics holds the Prometheus collectors of the survey service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoadsTotal counts overlay loads by input format and result
	// ("ok", "superseded", "fetch_error" or a kmz error kind).
	LoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "survey",
		Subsystem: "overlay",
		Name:      "loads_total",
		Help:      "Total survey file loads",
	}, []string{"format", "result"})

	LoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "survey",
		Subsystem: "overlay",
		Name:      "load_duration_seconds",
		Help:      "Time to fetch, parse and render a survey file",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"format"})

	GeometriesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "survey",
		Subsystem: "kmz",
		Name:      "geometries_extracted_total",
		Help:      "Geometries extracted from survey files",
	}, []string{"kind"})

	PlacemarksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "survey",
		Subsystem: "kmz",
		Name:      "placemarks_dropped_total",
		Help:      "Placemarks without a usable coordinate",
	})

	CompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "survey",
		Subsystem: "proximity",
		Name:      "completions_total",
		Help:      "Point completion attempts by outcome",
	}, []string{"outcome"})

	PositionUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "survey",
		Subsystem: "proximity",
		Name:      "position_updates_total",
		Help:      "Current position updates",
	})

	ActiveOverlays = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "survey",
		Subsystem: "overlay",
		Name:      "active",
		Help:      "Task overlays held in memory",
	})

	MapStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "survey",
		Subsystem: "http",
		Name:      "map_streams",
		Help:      "Open map SSE streams",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
