package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carpool_matching"

var (
	MatchesTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Total number of ranked matches returned"})
	MatchLatency        = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Match latency seconds"})
	CandidatesEvaluated = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidates_evaluated_total", Help: "Candidate trips scored across all match calls"})

	// RoutingFailures counts route computations that were zeroed out instead
	// of failing the match, by stage (baseline, with_rider, ride_leg).
	RoutingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "routing_failures_total", Help: "Route computations degraded to a zeroed detour"},
		[]string{"stage"},
	)
	RouteCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "route_cache_lookups_total", Help: "Route cache lookups by result"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
