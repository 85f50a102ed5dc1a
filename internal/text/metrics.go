package text

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyloom_generation_requests_total",
			Help: "Generation requests by backend, kind and status",
		},
		[]string{"backend", "kind", "status"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyloom_generation_duration_seconds",
			Help:    "Latency of generation requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"backend", "kind"},
	)

	promptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyloom_prompt_tokens",
			Help:    "Prompt size in tokens as counted locally",
			Buckets: prometheus.ExponentialBuckets(128, 2, 8),
		},
		[]string{"backend"},
	)
)
