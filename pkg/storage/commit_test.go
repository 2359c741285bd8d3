package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-graphcore/pkg/metrics"
)

func TestCommit_ConcurrentDisjointCommits(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	const workers = 8
	const perWorker = 25
	pairs := make([][2]NodeID, workers)
	nodes := createNodes(t, db, 2*workers)
	for i := range pairs {
		pairs[i] = [2]NodeID{nodes[2*i], nodes[2*i+1]}
	}

	var g errgroup.Group
	for _, pair := range pairs {
		g.Go(func() error {
			tx, err := db.Begin(context.Background())
			if err != nil {
				return err
			}
			for i := 0; i < perWorker; i++ {
				if _, err := tx.CreateRelationship(pair[0], pair[1], "PAIR"); err != nil {
					tx.Close(context.Background())
					return err
				}
			}
			tx.Success()
			return tx.Close(context.Background())
		})
	}
	require.NoError(t, g.Wait())

	tx := begin(t, db)
	defer tx.Close(context.Background())
	for _, pair := range pairs {
		assert.Equal(t, perWorker, count(t, tx, pair[0], Outgoing, "PAIR"))
		assert.Equal(t, perWorker, count(t, tx, pair[1], Incoming, "PAIR"))
	}
}

func TestCommit_DisjointCommitDoesNotWaitOnHeldLocks(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 4)

	// Hold the locks a commit on the first pair would need.
	release := db.locks.Acquire([]EntityRef{NodeRef(nodes[0]), NodeRef(nodes[1])})
	defer release()

	tx := begin(t, db)
	_, err := tx.CreateRelationship(nodes[2], nodes[3], "PAIR")
	require.NoError(t, err)
	tx.Success()

	done := make(chan error, 1)
	go func() { done <- tx.Close(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("commit on a disjoint pair blocked")
	}
}

func TestCommit_EndpointDeletedConcurrently(t *testing.T) {
	reg := metrics.NewRegistry()
	store := NewMemoryStore()
	opts := DefaultOptions()
	opts.Metrics = reg
	db, err := Open(context.Background(), store, opts)
	require.NoError(t, err)
	defer db.Close()

	nodes := createNodes(t, db, 2)

	writer := begin(t, db)
	_, err = writer.CreateRelationship(nodes[0], nodes[1], "T")
	require.NoError(t, err)

	deleter := begin(t, db)
	require.NoError(t, deleter.DeleteNode(nodes[1]))
	commit(t, deleter)

	writer.Success()
	err = writer.Close(context.Background())
	assert.True(t, IsConcurrentModification(err), "got %v", err)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CommitConflictTotal.WithLabelValues("endpoint_deleted")))

	_, rels := store.Stats()
	assert.Zero(t, rels, "failed commit writes nothing")
}

func TestCommit_DeletedNodeGainedRelationship(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 2)

	deleter := begin(t, db)
	require.NoError(t, deleter.DeleteNode(nodes[0]))

	writer := begin(t, db)
	_, err := writer.CreateRelationship(nodes[0], nodes[1], "T")
	require.NoError(t, err)
	commit(t, writer)

	deleter.Success()
	err = deleter.Close(context.Background())
	assert.True(t, IsConstraintViolation(err), "got %v", err)

	tx := begin(t, db)
	defer tx.Close(context.Background())
	_, err = tx.GetNode(nodes[0])
	assert.NoError(t, err)
	assert.Equal(t, 1, count(t, tx, nodes[0], Both))
}

func TestCommit_DeletedRelationshipDeletedAgain(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 2)
	tx := begin(t, db)
	rel, err := tx.CreateRelationship(nodes[0], nodes[1], "T")
	require.NoError(t, err)
	commit(t, tx)

	first := begin(t, db)
	second := begin(t, db)
	require.NoError(t, first.DeleteRelationship(rel))
	require.NoError(t, second.SetProperty(RelationshipRef(rel), "w", IntValue(1)))
	require.NoError(t, second.DeleteRelationship(rel))
	commit(t, first)

	second.Success()
	err = second.Close(context.Background())
	assert.True(t, IsConcurrentModification(err))
}

func TestCommit_PropertyOnConcurrentlyDeletedNode(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 1)

	setter := begin(t, db)
	require.NoError(t, setter.SetProperty(NodeRef(nodes[0]), "k", IntValue(1)))

	deleter := begin(t, db)
	require.NoError(t, deleter.DeleteNode(nodes[0]))
	commit(t, deleter)

	setter.Success()
	assert.True(t, IsConcurrentModification(setter.Close(context.Background())))
}

func TestCommit_StoreFailureLeavesCacheUntouched(t *testing.T) {
	store := &faultyStore{MemoryStore: NewMemoryStore()}
	db, err := Open(context.Background(), store, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	nodes := createNodes(t, db, 2)

	store.failAppend.Store(true)
	tx := begin(t, db)
	rel, err := tx.CreateRelationship(nodes[0], nodes[1], "T")
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(NodeRef(nodes[0]), "k", IntValue(1)))
	tx.Success()
	err = tx.Close(context.Background())
	require.Error(t, err)
	assert.True(t, IsStorageUnavailable(err))
	assert.True(t, errors.Is(err, errInjected))

	store.failAppend.Store(false)
	tx = begin(t, db)
	defer tx.Close(context.Background())
	_, err = tx.GetRelationship(rel)
	assert.ErrorIs(t, err, ErrRelationshipNotFound)
	assert.False(t, tx.HasProperty(NodeRef(nodes[0]), "k"))
	assert.Zero(t, count(t, tx, nodes[0], Both))
}

func TestCommit_BatchReadFailureSurfaces(t *testing.T) {
	store := &faultyStore{MemoryStore: NewMemoryStore()}
	db, err := Open(context.Background(), store, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	nodes := createNodes(t, db, 2)
	tx := begin(t, db)
	_, err = tx.CreateRelationship(nodes[0], nodes[1], "T")
	require.NoError(t, err)
	commit(t, tx)
	db.ClearCache()

	store.failBatch.Store(true)
	tx = begin(t, db)
	defer tx.Close(context.Background())
	_, err = tx.CountRelationships(nodes[0], Outgoing)
	assert.True(t, IsStorageUnavailable(err))

	// Not retried internally; the next attempt succeeds once the store recovers.
	store.failBatch.Store(false)
	assert.Equal(t, 1, count(t, tx, nodes[0], Outgoing))
}

func TestCommit_OnClosedDatabase(t *testing.T) {
	db, _, _ := setupDatabase(t, DefaultGrabSize)
	tx := begin(t, db)
	_, err := tx.CreateNode()
	require.NoError(t, err)
	require.NoError(t, db.Close())

	tx.Success()
	assert.True(t, IsClosed(tx.Close(context.Background())))
}

func TestCache_EvictionReloadsFromStore(t *testing.T) {
	store := NewMemoryStore()
	opts := DefaultOptions()
	opts.NodeCacheCapacity = 2
	opts.RelationshipCacheCapacity = 2
	opts.GrabSize = 3
	db, err := Open(context.Background(), store, opts)
	require.NoError(t, err)
	defer db.Close()

	nodes := createNodes(t, db, 6)
	tx := begin(t, db)
	for _, n := range nodes[1:] {
		_, err := tx.CreateRelationship(nodes[0], n, "T")
		require.NoError(t, err)
		require.NoError(t, tx.SetProperty(NodeRef(n), "leaf", BoolValue(true)))
	}
	commit(t, tx)

	cachedNodes, cachedRels := db.Cache().Len()
	assert.LessOrEqual(t, cachedNodes, 2)
	assert.LessOrEqual(t, cachedRels, 2)

	tx = begin(t, db)
	defer tx.Close(context.Background())
	assert.Equal(t, 5, count(t, tx, nodes[0], Outgoing))
	for _, n := range nodes[1:] {
		assert.True(t, tx.HasProperty(NodeRef(n), "leaf"))
		assert.Equal(t, 1, count(t, tx, n, Incoming))
	}
}
