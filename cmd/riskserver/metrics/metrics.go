// Package metrics provides Prometheus instrumentation for the risk server.
//
// Metrics exposed:
//   - glucoguard_predictions_total: Counter of predictions by label
//   - glucoguard_prediction_failures_total: Counter of failed predictions by error kind
//   - glucoguard_predict_seconds: Histogram of pipeline duration
//   - glucoguard_positive_probability: Histogram of positive-class probabilities
//   - glucoguard_store_seconds: Histogram of store and aggregator calls by operation
//   - glucoguard_model_info: Gauge set to 1 for the loaded artifact version
//   - glucoguard_errors_total: Counter of errors by component and reason
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/glucoguard/pkg/errs"
)

// Metrics holds all Prometheus metrics for the risk server. It implements
// inference.Recorder.
type Metrics struct {
	PredictionsTotal    *prometheus.CounterVec
	FailuresTotal       *prometheus.CounterVec
	PredictSeconds      prometheus.Histogram
	PositiveProbability prometheus.Histogram
	StoreSeconds        *prometheus.HistogramVec
	ModelInfo           *prometheus.GaugeVec
	ErrorsTotal         *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "glucoguard_predictions_total",
			Help: "Total number of successful predictions by label",
		}, []string{"label"}),

		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "glucoguard_prediction_failures_total",
			Help: "Total number of failed predictions by error kind",
		}, []string{"kind"}),

		PredictSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "glucoguard_predict_seconds",
			Help:    "Time spent running the inference pipeline",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),

		PositiveProbability: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "glucoguard_positive_probability",
			Help:    "Distribution of predicted positive-class probabilities",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),

		StoreSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "glucoguard_store_seconds",
			Help:    "Time spent in prediction store and aggregator calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),

		ModelInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "glucoguard_model_info",
			Help: "Loaded model artifact version and classifier",
		}, []string{"version", "classifier"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "glucoguard_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordPrediction records a successful prediction.
func (m *Metrics) RecordPrediction(label int, probability float64, seconds float64) {
	m.PredictionsTotal.WithLabelValues(strconv.Itoa(label)).Inc()
	m.PositiveProbability.Observe(probability)
	m.PredictSeconds.Observe(seconds)
}

// RecordFailure increments the failure counter for kind.
func (m *Metrics) RecordFailure(kind errs.Kind) {
	if kind == errs.KindNone {
		kind = errs.KindInternal
	}
	m.FailuresTotal.WithLabelValues(string(kind)).Inc()
}

// RecordStore records the duration of a store operation.
func (m *Metrics) RecordStore(op string, seconds float64) {
	m.StoreSeconds.WithLabelValues(op).Observe(seconds)
}

// SetModelInfo publishes the loaded artifact version.
func (m *Metrics) SetModelInfo(version, classifier string) {
	m.ModelInfo.Reset()
	m.ModelInfo.WithLabelValues(version, classifier).Set(1)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}
