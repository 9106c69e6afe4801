// Package metrics provides Prometheus metrics collection for the fraud detector.
// It defines the inference, input-validation and HTTP metrics exposed on the
// /metrics endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// ML and prediction metrics
	MLPredictions      prometheus.Counter   // Total number of successful predictions
	MLFraudFlagged     prometheus.Counter   // Predictions labelled fraudulent
	MLFailures         prometheus.Counter   // Classifier errors and invalid answers
	MLTimeouts         prometheus.Counter   // Classifier calls that hit the deadline
	MLModelAge         prometheus.Gauge     // Age of the loaded artifact in seconds
	MLLatency          prometheus.Histogram // End-to-end classifier latency in seconds
	MLPredictionScores prometheus.Histogram // Distribution of fraud probabilities
	MLFeatureDrift     *prometheus.GaugeVec // PSI of each input feature against the baseline

	// Input metrics
	UnknownTypes  prometheus.Counter // Requests rejected for an unknown transaction type
	InvalidInputs prometheus.Counter // Requests rejected for malformed or negative amounts

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec   // Requests by route, method and status
	HTTPDuration *prometheus.HistogramVec // Request duration by route
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of ML predictions made",
		}),
		MLFraudFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_fraud_flagged_total",
			Help: "Total number of transactions predicted fraudulent",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of ML prediction failures",
		}),
		MLTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_timeouts_total",
			Help: "Total number of ML prediction timeouts",
		}),
		MLModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded model artifact in seconds",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "ML prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		MLPredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted fraud probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		MLFeatureDrift: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ml_feature_drift_psi",
			Help: "Population stability index of each model input against its baseline",
		}, []string{"feature"}),
		UnknownTypes: factory.NewCounter(prometheus.CounterOpts{
			Name: "unknown_transaction_types_total",
			Help: "Total number of requests with an unknown transaction type",
		}),
		InvalidInputs: factory.NewCounter(prometheus.CounterOpts{
			Name: "invalid_inputs_total",
			Help: "Total number of requests rejected for invalid amounts or balances",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"route"}),
	}
}
