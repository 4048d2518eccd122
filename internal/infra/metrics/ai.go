package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiCallsTotal,
		aiCallsLatencyMs,
		aiFragmentsTotal,
	)
}

var (
	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "Completion calls per provider/model and outcome.",
		},
		[]string{"provider", "model", "success"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "model", "success"},
	)

	aiFragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_stream_fragments_total",
			Help: "Streamed text fragments received per provider/model.",
		},
		[]string{"provider", "model"},
	)
)

func ObserveCompletion(provider, model string, fragments, latencyMs int, success bool) {
	ok := strconv.FormatBool(success)
	aiCallsTotal.WithLabelValues(norm(provider), norm(model), ok).Inc()
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(model), ok).Observe(float64(latencyMs))
	aiFragmentsTotal.WithLabelValues(norm(provider), norm(model)).Add(float64(fragments))
}
