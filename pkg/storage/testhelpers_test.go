package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupDatabase opens a database over a fresh memory store.
func setupDatabase(t *testing.T, grabSize int) (*Database, *MemoryStore, func()) {
	t.Helper()

	store := NewMemoryStore()
	opts := DefaultOptions()
	opts.GrabSize = grabSize
	db, err := Open(context.Background(), store, opts)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	cleanup := func() {
		db.Close()
	}
	return db, store, cleanup
}

func begin(t *testing.T, db *Database) *Transaction {
	t.Helper()
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func commit(t *testing.T, tx *Transaction) {
	t.Helper()
	tx.Success()
	require.NoError(t, tx.Close(context.Background()))
}

// createNodes commits n new nodes and returns their ids.
func createNodes(t *testing.T, db *Database, n int) []NodeID {
	t.Helper()
	tx := begin(t, db)
	ids := make([]NodeID, n)
	for i := range ids {
		id, err := tx.CreateNode()
		require.NoError(t, err)
		ids[i] = id
	}
	commit(t, tx)
	return ids
}

func count(t *testing.T, tx *Transaction, node NodeID, dir Direction, types ...string) int {
	t.Helper()
	n, err := tx.CountRelationships(node, dir, types...)
	require.NoError(t, err)
	return n
}

func collect(t *testing.T, tx *Transaction, node NodeID, dir Direction, types ...string) []RelationshipID {
	t.Helper()
	var ids []RelationshipID
	err := tx.WithRelationships(node, dir, types, func(r Relationship) error {
		ids = append(ids, r.ID)
		return nil
	})
	require.NoError(t, err)
	return ids
}

var errInjected = errors.New("injected store failure")

// faultyStore fails selected operations on demand.
type faultyStore struct {
	*MemoryStore
	failAppend atomic.Bool
	failBatch  atomic.Bool
}

func (s *faultyStore) AppendCommittedChanges(ctx context.Context, cs *ChangeSet) error {
	if s.failAppend.Load() {
		return errInjected
	}
	return s.MemoryStore.AppendCommittedChanges(ctx, cs)
}

func (s *faultyStore) ReadRelationshipBatch(ctx context.Context, node NodeID, typ TypeID, dir Direction, after RelationshipID, limit int) (RelationshipBatch, error) {
	if s.failBatch.Load() {
		return RelationshipBatch{}, errInjected
	}
	return s.MemoryStore.ReadRelationshipBatch(ctx, node, typ, dir, after, limit)
}
