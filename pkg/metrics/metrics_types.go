package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the graph core
type Registry struct {
	// Transaction Metrics
	TransactionsTotal   *prometheus.CounterVec
	TransactionsActive  prometheus.Gauge
	CommitDuration      prometheus.Histogram
	CommitLockWait      prometheus.Histogram
	CommitConflictTotal *prometheus.CounterVec

	// Cache Metrics
	CacheRequestsTotal *prometheus.CounterVec
	CacheEvictions     *prometheus.CounterVec

	// Chain Loader Metrics
	ChainBatchesTotal       prometheus.Counter
	ChainRelationshipsTotal prometheus.Counter
	ChainLoadDuration       prometheus.Histogram

	// Backing Store Metrics
	StoreErrorsTotal *prometheus.CounterVec

	// Token Metrics
	TokenAllocationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized.
// Each call gets its own prometheus registry so isolated databases in tests
// never collide on registration.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initTransactionMetrics()
	r.initCacheMetrics()
	r.initStoreMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
