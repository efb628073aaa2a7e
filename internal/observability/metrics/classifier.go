package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oncoderma/oncoderma-go/internal/errors"
)

// ClassifierMetrics tracks model inference.
type ClassifierMetrics struct {
	predictionsTotal  *prometheus.CounterVec
	inferenceDuration prometheus.Histogram
	inferenceErrors   *prometheus.CounterVec
	modelReady        prometheus.Gauge
}

// NewClassifierMetrics creates and registers classifier metrics.
func NewClassifierMetrics(registry *prometheus.Registry) (*ClassifierMetrics, error) {
	m := &ClassifierMetrics{
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_predictions_total",
				Help: "Total number of predictions by diagnosis label",
			},
			[]string{"label"},
		),
		inferenceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "classifier_inference_duration_seconds",
				Help:    "Time taken for model inference",
				Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
			},
		),
		inferenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classifier_inference_errors_total",
				Help: "Total number of failed inferences by error category",
			},
			[]string{"category"},
		),
		modelReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "classifier_model_ready",
				Help: "1 when the model is loaded, 0 otherwise",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ClassifierMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.predictionsTotal, m.inferenceDuration, m.inferenceErrors, m.modelReady}
}

// Describe implements the Collector interface
func (m *ClassifierMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *ClassifierMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordInference records one model invocation.
func (m *ClassifierMetrics) RecordInference(label string, duration time.Duration, err error) {
	m.inferenceDuration.Observe(duration.Seconds())
	if err != nil {
		m.inferenceErrors.WithLabelValues(string(errors.CategoryOf(err))).Inc()
		return
	}
	if label == "" {
		label = unknownLabel
	}
	m.predictionsTotal.WithLabelValues(label).Inc()
}

// SetModelReady sets the model readiness gauge.
func (m *ClassifierMetrics) SetModelReady(ready bool) {
	if ready {
		m.modelReady.Set(1)
		return
	}
	m.modelReady.Set(0)
}
