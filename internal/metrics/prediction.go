package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prediction Prometheus metrics.
var (
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockrisk",
			Name:      "predictions_total",
			Help:      "Total number of prediction requests by outcome",
		},
		[]string{"outcome"}, // "ok" / "invalid" / "unavailable" / "error"
	)

	PredictionScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "blockrisk",
			Name:      "prediction_score",
			Help:      "Distribution of served risk scores",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		},
	)

	ModelLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blockrisk",
			Name:      "model_loaded",
			Help:      "1 when a model artifact is loaded and serving",
		},
	)

	InputOutOfRangeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockrisk",
			Name:      "input_out_of_range_total",
			Help:      "Prediction inputs outside the documented feature domain",
		},
		[]string{"field"},
	)

	PredictionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockrisk",
			Name:      "prediction_cache_total",
			Help:      "Prediction cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var predMetricsRegistered bool

// RegisterPredictionMetrics registers Prometheus prediction metrics. Must be called once from main.
func RegisterPredictionMetrics() {
	if predMetricsRegistered {
		return
	}
	prometheus.MustRegister(PredictionsTotal)
	prometheus.MustRegister(PredictionScore)
	prometheus.MustRegister(ModelLoaded)
	prometheus.MustRegister(InputOutOfRangeTotal)
	prometheus.MustRegister(PredictionCacheTotal)
	predMetricsRegistered = true
}
