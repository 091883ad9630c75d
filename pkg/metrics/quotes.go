package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// provider / chain
var (
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "provider_requests_total",
		Help:      "Upstream quote requests by provider and result kind.",
	}, []string{"provider", "result"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "goldex",
		Name:      "provider_request_seconds",
		Help:      "Upstream quote request latency.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms ~ 20s
	}, []string{"provider"})

	ChainExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "chain_exhausted_total",
		Help:      "Resolutions where every configured provider failed.",
	}, []string{"symbol"})
)

// cache
var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "cache_hits_total",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "cache_misses_total",
	})
)

// scheduler
var (
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "scheduler_ticks_total",
		Help:      "Refresh ticks fired.",
	})
	SchedulerSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "scheduler_skipped_total",
		Help:      "Per-symbol fetches skipped because the previous one was still in flight.",
	}, []string{"symbol"})
	SchedulerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "scheduler_failures_total",
		Help:      "Per-symbol refreshes that failed and kept the previous value.",
	}, []string{"symbol"})
	ListenerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldex",
		Name:      "listener_errors_total",
		Help:      "Update listener failures.",
	}, []string{"listener"})
)
