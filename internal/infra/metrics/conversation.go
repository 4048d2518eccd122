package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		turnsTotal,
		promptTokens,
		engagementHintsTotal,
		sessionsGauge,
		persistWritesTotal,
	)
}

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Conversation turns by outcome (completed/invalid/generation_failed).",
		},
		[]string{"outcome"},
	)

	promptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conversation_prompt_tokens",
			Help:    "Prompt size in tokens, by counting method (estimate/bpe).",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		},
		[]string{"method"},
	)

	engagementHintsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_engagement_hints_total",
			Help: "Engagement hints selected per turn.",
		},
		[]string{"hint"},
	)

	sessionsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversation_sessions",
			Help: "Sessions currently held in memory.",
		},
	)

	persistWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_persist_writes_total",
			Help: "Session snapshot writes by result (ok/failed/coalesced).",
		},
		[]string{"result"},
	)
)

func IncTurn(outcome string) {
	turnsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObservePromptTokens(method string, n int) {
	promptTokens.WithLabelValues(norm(method)).Observe(float64(n))
}

func IncEngagementHint(hint string) {
	engagementHintsTotal.WithLabelValues(norm(hint)).Inc()
}

func SetSessions(n int) {
	sessionsGauge.Set(float64(n))
}

func IncPersistWrite(result string) {
	persistWritesTotal.WithLabelValues(norm(result)).Inc()
}
