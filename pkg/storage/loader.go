package storage

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/metrics"
)

// DefaultGrabSize is the number of relationships paged per batch.
const DefaultGrabSize = 100

// Loader pages relationship chains from the backing store into the shared
// cache in fixed size batches.
type Loader struct {
	cache    *Cache
	store    BackingStore
	grabSize int
	logger   logging.Logger
	metrics  *metrics.Registry
}

// NewLoader creates a loader. A non-positive grabSize selects DefaultGrabSize.
func NewLoader(cache *Cache, store BackingStore, grabSize int, logger logging.Logger, reg *metrics.Registry) *Loader {
	if grabSize <= 0 {
		grabSize = DefaultGrabSize
	}
	return &Loader{
		cache:    cache,
		store:    store,
		grabSize: grabSize,
		logger:   logger.With(logging.Component("loader")),
		metrics:  reg,
	}
}

// GrabSize returns the configured batch size.
func (l *Loader) GrabSize() int {
	return l.grabSize
}

// LoadNextBatch pages the next batch of one chain into the cache and returns
// the ids cached beyond the cursor seen on entry. hasMore is false once the
// chain is fully cached. If a concurrent caller paged the batch first, its
// ids are returned and the store is not read again.
func (l *Loader) LoadNextBatch(ctx context.Context, node NodeID, typ TypeID, dir Direction) (ids []RelationshipID, hasMore bool, err error) {
	if dir != Outgoing && dir != Incoming {
		return nil, false, InvalidArgumentError("load next batch", "direction must be OUTGOING or INCOMING")
	}
	entry, err := l.cache.node(ctx, node)
	if err != nil {
		return nil, false, err
	}
	ch := entry.chain(ChainKey{Type: typ, Direction: dir})
	observed := ch.load()
	if observed.full {
		return nil, false, nil
	}
	next, err := l.extend(ctx, node, ChainKey{Type: typ, Direction: dir}, ch, observed)
	if err != nil {
		return nil, false, err
	}
	start := next.after(observed.cursor)
	out := make([]RelationshipID, len(next.ids)-start)
	copy(out, next.ids[start:])
	return out, !next.full, nil
}

// extend fetches the batch following observed, unless another caller
// already has.
func (l *Loader) extend(ctx context.Context, node NodeID, key ChainKey, ch *chain, observed *chainSnapshot) (*chainSnapshot, error) {
	began := time.Now()
	next, added, err := ch.extendFrom(observed, func(after RelationshipID) (RelationshipBatch, error) {
		return l.store.ReadRelationshipBatch(ctx, node, key.Type, key.Direction, after, l.grabSize)
	})
	if err != nil {
		l.metrics.RecordStoreError("read_batch")
		l.logger.Error("relationship batch load failed",
			logging.NodeID(uint64(node)),
			logging.Any("chain", key),
			logging.Error(err))
		return nil, StoreError("load relationship batch", err)
	}
	if next != observed && added > 0 {
		l.metrics.RecordChainBatch(added, time.Since(began))
		l.logger.Debug("relationship batch loaded",
			logging.NodeID(uint64(node)),
			logging.Uint64("type", uint64(key.Type)),
			logging.String("direction", key.Direction.String()),
			logging.Count(added),
			logging.Bool("full", next.full))
	}
	return next, nil
}
