package storage

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/metrics"
	"github.com/dd0wney/cluso-graphcore/pkg/tokens"
)

// Options configures a Database.
type Options struct {
	// GrabSize is the number of relationships paged per chain batch.
	GrabSize int
	// NodeCacheCapacity bounds the number of cached nodes.
	NodeCacheCapacity int
	// RelationshipCacheCapacity bounds the number of cached relationships.
	RelationshipCacheCapacity int
	// Tokens allocates relationship type ids. Defaults to a process-local
	// allocator.
	Tokens TokenAllocator
	// Logger defaults to a no-op logger.
	Logger logging.Logger
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Registry
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		GrabSize:                  DefaultGrabSize,
		NodeCacheCapacity:         100_000,
		RelationshipCacheCapacity: 500_000,
	}
}

// Database is the handle to one graph: the shared cache, loader, lock
// manager and token table over a backing store. Isolated instances never
// share state.
type Database struct {
	store   BackingStore
	cache   *Cache
	loader  *Loader
	locks   *LockManager
	tokens  *tokenHolder
	logger  logging.Logger
	metrics *metrics.Registry

	nextNodeID atomic.Uint64
	nextRelID  atomic.Uint64
	closed     atomic.Bool
}

// Open creates a Database over store. The database owns store and closes it.
func Open(ctx context.Context, store BackingStore, opts Options) (*Database, error) {
	defaults := DefaultOptions()
	if opts.GrabSize <= 0 {
		opts.GrabSize = defaults.GrabSize
	}
	if opts.NodeCacheCapacity <= 0 {
		opts.NodeCacheCapacity = defaults.NodeCacheCapacity
	}
	if opts.RelationshipCacheCapacity <= 0 {
		opts.RelationshipCacheCapacity = defaults.RelationshipCacheCapacity
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	if opts.Tokens == nil {
		local, err := tokens.NewLocalAllocator(nil)
		if err != nil {
			return nil, err
		}
		opts.Tokens = local
	}

	cache, err := NewCache(store, opts.NodeCacheCapacity, opts.RelationshipCacheCapacity, opts.Metrics)
	if err != nil {
		return nil, err
	}

	db := &Database{
		store:   store,
		cache:   cache,
		locks:   NewLockManager(),
		tokens:  newTokenHolder(opts.Tokens, opts.Metrics),
		logger:  opts.Logger.With(logging.Component("database")),
		metrics: opts.Metrics,
	}
	db.loader = NewLoader(cache, store, opts.GrabSize, opts.Logger, opts.Metrics)

	hw, err := store.HighWater(ctx)
	if err != nil {
		return nil, StoreError("open", err)
	}
	db.nextNodeID.Store(uint64(hw.Node))
	db.nextRelID.Store(uint64(hw.Relationship))

	if err := db.tokens.refresh(ctx); err != nil {
		return nil, err
	}

	db.logger.Info("database opened",
		logging.Int("grab_size", opts.GrabSize),
		logging.Uint64("node_high_water", uint64(hw.Node)),
		logging.Uint64("relationship_high_water", uint64(hw.Relationship)))
	return db, nil
}

// Begin starts a transaction. ctx is used for every store access the
// transaction makes until it is closed.
func (db *Database) Begin(ctx context.Context) (*Transaction, error) {
	if db.closed.Load() {
		return nil, NewError("begin").Cause(ErrDatabaseClosed).Err()
	}
	tx := newTransaction(ctx, db, uuid.NewString())
	db.metrics.TransactionStarted()
	return tx, nil
}

// ClearCache drops every cached node, relationship and chain. Subsequent
// reads page from the store again.
func (db *Database) ClearCache() {
	nodes, rels := db.cache.Len()
	db.cache.Clear()
	db.logger.Info("cache cleared",
		logging.Int("nodes", nodes),
		logging.Int("relationships", rels))
}

// Loader returns the chain loader.
func (db *Database) Loader() *Loader {
	return db.loader
}

// Cache returns the shared cache.
func (db *Database) Cache() *Cache {
	return db.cache
}

// RelationshipTypes returns every relationship type name known to this
// database and its id.
func (db *Database) RelationshipTypes(ctx context.Context) (map[string]TypeID, error) {
	if err := db.tokens.refresh(ctx); err != nil {
		return nil, err
	}
	return db.tokens.names(), nil
}

// Ping reports whether the database is open and its store answers reads.
func (db *Database) Ping(ctx context.Context) error {
	if db.closed.Load() {
		return NewError("ping").Cause(ErrDatabaseClosed).Err()
	}
	if _, err := db.store.HighWater(ctx); err != nil {
		return StoreError("ping", err)
	}
	return nil
}

// Close closes the database and its store. Open transactions can no longer
// commit. Closing twice is a no-op.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	db.cache.Clear()
	if err := db.store.Close(); err != nil {
		db.logger.Error("store close failed", logging.Error(err))
		return StoreError("close", err)
	}
	db.logger.Info("database closed")
	return nil
}

func (db *Database) allocateNodeID() NodeID {
	return NodeID(db.nextNodeID.Add(1))
}

func (db *Database) allocateRelationshipID() RelationshipID {
	return RelationshipID(db.nextRelID.Add(1))
}
