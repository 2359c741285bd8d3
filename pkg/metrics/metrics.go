package metrics

import (
	"time"
)

// Transaction outcomes used as label values.
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// TransactionStarted tracks a newly opened transaction
func (r *Registry) TransactionStarted() {
	r.TransactionsActive.Inc()
}

// RecordTransaction records a transaction close with its outcome
func (r *Registry) RecordTransaction(outcome string) {
	r.TransactionsActive.Dec()
	r.TransactionsTotal.WithLabelValues(outcome).Inc()
}

// RecordCommit records a successful commit with its duration and lock wait
func (r *Registry) RecordCommit(duration, lockWait time.Duration) {
	r.CommitDuration.Observe(duration.Seconds())
	r.CommitLockWait.Observe(lockWait.Seconds())
}

// RecordConflict records a commit rejected during validation
func (r *Registry) RecordConflict(reason string) {
	r.CommitConflictTotal.WithLabelValues(reason).Inc()
}

// RecordCacheLookup records a shared cache hit or miss
func (r *Registry) RecordCacheLookup(entity string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheRequestsTotal.WithLabelValues(entity, result).Inc()
}

// RecordEviction records an entry dropped from the shared cache
func (r *Registry) RecordEviction(entity string) {
	r.CacheEvictions.WithLabelValues(entity).Inc()
}

// RecordChainBatch records one batch paged in by the chain loader
func (r *Registry) RecordChainBatch(relationships int, duration time.Duration) {
	r.ChainBatchesTotal.Inc()
	r.ChainRelationshipsTotal.Add(float64(relationships))
	r.ChainLoadDuration.Observe(duration.Seconds())
}

// RecordStoreError records a backing store failure
func (r *Registry) RecordStoreError(operation string) {
	r.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordTokenLookup records a token lookup served locally or allocated
func (r *Registry) RecordTokenLookup(allocated bool) {
	result := "cached"
	if allocated {
		result = "allocated"
	}
	r.TokenAllocationsTotal.WithLabelValues(result).Inc()
}
