package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTransactionMetrics() {
	r.TransactionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_transactions_total",
			Help: "Total number of closed transactions by outcome",
		},
		[]string{"outcome"},
	)

	r.TransactionsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphcore_transactions_active",
			Help: "Number of transactions currently open",
		},
	)

	r.CommitDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphcore_commit_duration_seconds",
			Help:    "Time spent committing a transaction, locks included",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
	)

	r.CommitLockWait = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphcore_commit_lock_wait_seconds",
			Help:    "Time spent acquiring per-entity commit locks",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1.0},
		},
	)

	r.CommitConflictTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_commit_conflicts_total",
			Help: "Commits rejected by validation against committed state",
		},
		[]string{"reason"},
	)

	r.TokenAllocationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_token_allocations_total",
			Help: "Relationship type token lookups by result",
		},
		[]string{"result"},
	)
}

func (r *Registry) initCacheMetrics() {
	r.CacheRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_cache_requests_total",
			Help: "Shared cache lookups by entity kind and result",
		},
		[]string{"entity", "result"},
	)

	r.CacheEvictions = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_cache_evictions_total",
			Help: "Entries evicted from the shared cache",
		},
		[]string{"entity"},
	)

	r.ChainBatchesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphcore_chain_batches_total",
			Help: "Relationship chain batches paged in from the backing store",
		},
	)

	r.ChainRelationshipsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphcore_chain_relationships_loaded_total",
			Help: "Relationships paged in from the backing store",
		},
	)

	r.ChainLoadDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphcore_chain_load_duration_seconds",
			Help:    "Time spent reading one chain batch from the backing store",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		},
	)
}

func (r *Registry) initStoreMetrics() {
	r.StoreErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcore_store_errors_total",
			Help: "Backing store failures by operation",
		},
		[]string{"operation"},
	)
}
