// Package observability defines the Prometheus metrics of the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airq"

// Metrics holds the Prometheus counters, histograms, and gauges for training
// and prediction.
type Metrics struct {
	// Prediction metrics.
	Predictions        *prometheus.CounterVec // labels: band
	PredictionErrors   *prometheus.CounterVec // labels: reason (log.Error* codes)
	PredictionDuration prometheus.Histogram

	// Training metrics.
	TrainingRuns     *prometheus.CounterVec // labels: outcome={success,error}
	TrainingDuration prometheus.Histogram
	TrainingRows     prometheus.Gauge
	DroppedRows      prometheus.Gauge
	ModelReady       prometheus.Gauge

	// HTTP metrics.
	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: method, route
}

func newMetrics() *Metrics {
	return &Metrics{
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served, by AQI band.",
		}, []string{"band"}),
		PredictionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Rejected or failed predictions, by reason.",
		}, []string{"reason"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time to scale a feature vector and evaluate the forest.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Training runs, by outcome.",
		}, []string{"outcome"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Duration of a complete load, clean and fit cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		TrainingRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_rows",
			Help:      "Rows used to fit the current model.",
		}),
		DroppedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_rows_dropped",
			Help:      "Rows removed by cleaning before the last training run.",
		}),
		ModelReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_ready",
			Help:      "1 when a trained model is serving predictions, 0 otherwise.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Predictions,
		m.PredictionErrors,
		m.PredictionDuration,
		m.TrainingRuns,
		m.TrainingDuration,
		m.TrainingRows,
		m.DroppedRows,
		m.ModelReady,
		m.HTTPRequests,
		m.HTTPDuration,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered on a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() (*Metrics, *prometheus.Registry) {
	m := newMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.collectors()...)
	return m, reg
}
