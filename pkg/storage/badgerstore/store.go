// Package badgerstore is a durable storage.BackingStore on BadgerDB.
//
// Key structure:
//   - Nodes: 0x01 + nodeID -> gob(properties)
//   - Relationships: 0x02 + relID -> gob(RelationshipRecord)
//   - Chain index: 0x03 + nodeID + typeID + direction + relID -> empty
//   - Relationship groups: 0x04 + nodeID + typeID + direction -> member count
//   - Tokens: 0x05 + name -> id
//   - Metadata: 0x06 + name -> value
//
// A chain batch is a key-only prefix scan seeked past the last id, so paging
// a hub never decodes relationship records.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/storage"
)

// Options configures a Store.
type Options struct {
	// DataDir holds the badger files. Ignored when InMemory is set.
	DataDir string
	// InMemory keeps everything in memory; data is lost on Close.
	InMemory bool
	// SyncWrites fsyncs every commit.
	SyncWrites bool
	Logger     logging.Logger
}

// Store implements storage.BackingStore and tokens.Persister.
type Store struct {
	db     *badger.DB
	logger logging.Logger

	mu     sync.RWMutex
	closed bool
}

var _ storage.BackingStore = (*Store)(nil)

// Open opens or creates a store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	logger := opts.Logger.With(logging.Component("badgerstore"))

	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(badgerLogger{logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	logger.Info("badger store opened",
		logging.Path(opts.DataDir),
		logging.Bool("in_memory", opts.InMemory))
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) ensureOpen() error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return storage.ErrDatabaseClosed
	}
	return nil
}

func (s *Store) withView(fn func(txn *badger.Txn) error) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) withUpdate(fn func(txn *badger.Txn) error) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

func badgerIterOptsKeyOnly(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	return opts
}

func badgerIterOptsPrefetchValues(prefix []byte) badger.IteratorOptions {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.Prefix = prefix
	return opts
}

// ReadRelationshipBatch implements storage.BackingStore.
func (s *Store) ReadRelationshipBatch(ctx context.Context, node storage.NodeID, typ storage.TypeID, dir storage.Direction, after storage.RelationshipID, limit int) (storage.RelationshipBatch, error) {
	if err := ctx.Err(); err != nil {
		return storage.RelationshipBatch{}, err
	}
	member := storage.ChainMember{Node: node, Key: storage.ChainKey{Type: typ, Direction: dir}}
	prefix := chainPrefix(node, member.Key)

	var batch storage.RelationshipBatch
	err := s.withView(func(txn *badger.Txn) error {
		it := txn.NewIterator(badgerIterOptsKeyOnly(prefix))
		defer it.Close()

		for it.Seek(chainKey(member, after+1)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(batch.IDs) == limit {
				batch.HasMore = true
				return nil
			}
			batch.IDs = append(batch.IDs, chainKeyID(it.Item().Key()))
		}
		return nil
	})
	return batch, err
}

// ReadNode implements storage.BackingStore.
func (s *Store) ReadNode(ctx context.Context, id storage.NodeID) (*storage.NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *storage.NodeRecord
	err := s.withView(func(txn *badger.Txn) error {
		props, err := getNode(txn, id)
		if err != nil {
			return err
		}
		rec = &storage.NodeRecord{ID: id, Properties: props}
		return nil
	})
	return rec, err
}

// ReadRelationship implements storage.BackingStore.
func (s *Store) ReadRelationship(ctx context.Context, id storage.RelationshipID) (*storage.RelationshipRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *storage.RelationshipRecord
	err := s.withView(func(txn *badger.Txn) error {
		var err error
		rec, err = getRelationship(txn, id)
		return err
	})
	return rec, err
}

// ReadRelationshipGroups implements storage.BackingStore.
func (s *Store) ReadRelationshipGroups(ctx context.Context, node storage.NodeID) ([]storage.ChainKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []storage.ChainKey
	err := s.withView(func(txn *badger.Txn) error {
		it := txn.NewIterator(badgerIterOptsKeyOnly(groupPrefix(node)))
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, groupKeyChain(it.Item().Key()))
		}
		return nil
	})
	return keys, err
}

// HighWater implements storage.BackingStore.
func (s *Store) HighWater(ctx context.Context) (storage.HighWater, error) {
	if err := ctx.Err(); err != nil {
		return storage.HighWater{}, err
	}
	var hw storage.HighWater
	err := s.withView(func(txn *badger.Txn) error {
		n, err := getUint64(txn, metaKey(metaHighNode))
		if err != nil {
			return err
		}
		r, err := getUint64(txn, metaKey(metaHighRel))
		if err != nil {
			return err
		}
		hw = storage.HighWater{Node: storage.NodeID(n), Relationship: storage.RelationshipID(r)}
		return nil
	})
	return hw, err
}

// Close implements storage.BackingStore. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	s.logger.Info("badger store closed")
	return nil
}

func getNode(txn *badger.Txn, id storage.NodeID) (map[string]storage.Value, error) {
	item, err := txn.Get(nodeKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.NodeNotFoundError("read node", id)
	}
	if err != nil {
		return nil, err
	}
	var props map[string]storage.Value
	err = item.Value(func(val []byte) error {
		var decodeErr error
		props, decodeErr = decodeNode(val)
		return decodeErr
	})
	return props, err
}

func getRelationship(txn *badger.Txn, id storage.RelationshipID) (*storage.RelationshipRecord, error) {
	item, err := txn.Get(relKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.RelationshipNotFoundError("read relationship", id)
	}
	if err != nil {
		return nil, err
	}
	var rec *storage.RelationshipRecord
	err = item.Value(func(val []byte) error {
		var decodeErr error
		rec, decodeErr = decodeRelationship(val)
		return decodeErr
	})
	return rec, err
}

func getUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		v = decodeUint64(val)
		return nil
	})
	return v, err
}
