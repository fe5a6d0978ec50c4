// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequirementsValidated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_requirements_total",
			Help: "Total number of requirement validations by outcome status",
		},
		[]string{"category", "status"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_provider_calls_total",
			Help: "Total number of generative model API calls by result",
		},
		[]string{"result"},
	)

	ProviderRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "validation_provider_retries_total",
			Help: "Total number of retried generative model API calls",
		},
	)

	ParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_parse_fallbacks_total",
			Help: "Model responses recovered at each parser fallback layer",
		},
		[]string{"layer"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "validation_run_duration_seconds",
			Help:    "Duration of validation runs by final status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"status"},
	)

	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "validation_runs_active",
			Help: "Number of validation runs currently processing",
		},
	)
)
