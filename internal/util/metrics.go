package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_mutations_total",
		Help: "Total number of resolved mutations by kind and outcome",
	}, []string{"kind", "outcome"})

	MutationsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_mutations_rejected_total",
		Help: "Total number of mutations rejected before any remote call",
	}, []string{"reason"})

	MutationRollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_mutation_rollbacks_total",
		Help: "Total number of optimistic mutations rolled back",
	})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_hits_total",
		Help: "Total number of query cache hits served without a fetch",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_misses_total",
		Help: "Total number of query cache misses that triggered a fetch",
	})

	CacheStaleServesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_stale_serves_total",
		Help: "Total number of stale entries served while revalidating",
	})

	CacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_evictions_total",
		Help: "Total number of entries evicted past their retention window",
	})

	CacheInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_cache_invalidations_total",
		Help: "Total number of keys invalidated after mutations",
	})

	RemoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_remote_call_duration_seconds",
		Help:    "Latency of remote gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	RemoteCallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_remote_call_errors_total",
		Help: "Total number of failed remote gateway calls",
	}, []string{"operation"})

	AlertsShownTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_alerts_shown_total",
		Help: "Total number of alert messages shown",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
