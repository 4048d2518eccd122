package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(rateLimitDecisionsTotal) }

var rateLimitDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_decisions_total",
		Help: "Rate limiter decisions per surface.",
	},
	[]string{"surface", "result"}, // e.g., surface="http", result="allowed"
)

func IncRateLimit(surface, result string) {
	rateLimitDecisionsTotal.WithLabelValues(norm(surface), norm(result)).Inc()
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
