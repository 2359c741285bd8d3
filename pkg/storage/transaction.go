// Transaction support for the graph core.
//
// A Transaction is an overlay of pending changes composed on top of the
// shared cache. Reads resolve in three layers: the transaction's own
// creations and property changes, then its own deletions (which mask), then
// committed state from the cache, paging chains through the loader on a miss.
//
// This file is the package documentation for transaction support.
// The implementation is split across:
//   - transaction_types.go: Transaction struct and lifecycle state
//   - transaction_ops.go: create, delete and property operations
//   - transaction_query.go: relationship queries over the composed view
//   - transaction_commit.go: commit, rollback and validation
package storage
