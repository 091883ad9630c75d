package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitBlockTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goldex",
			Name:      "ratelimit_block_total",
			Help:      "Total number of HTTP requests rejected by the per-IP limiter.",
		},
		[]string{"route"},
	)

	CBRejectTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goldex",
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of calls rejected by an open circuit breaker.",
		},
		[]string{"provider", "reason"},
	)

	CBState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "goldex",
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"provider", "state"}, // state: closed/open/half-open
	)
)
