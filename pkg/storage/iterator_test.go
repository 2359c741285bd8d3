package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRelationships_RepeatedTypeCountsOnce(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 2)
	tx := begin(t, db)
	_, err := tx.CreateRelationship(nodes[0], nodes[1], "FOO")
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, tx, nodes[0], Outgoing, "FOO", "FOO"), "uncommitted")
	commit(t, tx)

	tx = begin(t, db)
	defer tx.Close(context.Background())
	assert.Equal(t, 1, count(t, tx, nodes[0], Outgoing, "FOO", "FOO"), "committed")
}

func TestRelationships_TypeSetCounting(t *testing.T) {
	for _, committed := range []bool{false, true} {
		t.Run(fmt.Sprintf("committed=%v", committed), func(t *testing.T) {
			db, _, cleanup := setupDatabase(t, 2)
			defer cleanup()

			nodes := createNodes(t, db, 2)
			tx := begin(t, db)
			for _, typ := range []string{"A", "B", "C"} {
				for i := 0; i < 3; i++ {
					_, err := tx.CreateRelationship(nodes[0], nodes[1], typ)
					require.NoError(t, err)
				}
			}
			if committed {
				commit(t, tx)
				db.ClearCache()
				tx = begin(t, db)
			}
			defer tx.Close(context.Background())

			for _, dir := range []Direction{Outgoing, Both} {
				assert.Equal(t, 6, count(t, tx, nodes[0], dir, "A", "B"), dir.String())
				assert.Equal(t, 3, count(t, tx, nodes[0], dir, "A"), dir.String())
				assert.Equal(t, 9, count(t, tx, nodes[0], dir), dir.String())
			}
			assert.Equal(t, 6, count(t, tx, nodes[1], Incoming, "C", "B"))
			assert.Zero(t, count(t, tx, nodes[0], Incoming))
			assert.Zero(t, count(t, tx, nodes[0], Outgoing, "UNKNOWN"))
			assert.Equal(t, 3, count(t, tx, nodes[0], Outgoing, "UNKNOWN", "C"))
		})
	}
}

func TestRelationships_PagedLoadingCompleteness(t *testing.T) {
	for _, grab := range []int{1, 7, 100, 1000} {
		for _, clear := range []bool{false, true} {
			t.Run(fmt.Sprintf("grab=%d/clear=%v", grab, clear), func(t *testing.T) {
				pagedCompleteness(t, grab, clear)
			})
		}
	}
}

// pagedCompleteness commits 150 relationships, adds 50 in a second
// transaction and checks the 200 are seen before and after a reload.
func pagedCompleteness(t *testing.T, grab int, clearAfterFirstCommit bool) {
	db, store, cleanup := setupDatabase(t, grab)
	defer cleanup()

	tx := begin(t, db)
	hub, err := tx.CreateNode()
	require.NoError(t, err)
	other, err := tx.CreateNode()
	require.NoError(t, err)
	for i := 0; i < 150; i++ {
		_, err := tx.CreateRelationship(hub, other, "LINK")
		require.NoError(t, err)
	}
	commit(t, tx)

	if clearAfterFirstCommit {
		db.ClearCache()
	}

	tx = begin(t, db)
	for i := 0; i < 50; i++ {
		_, err := tx.CreateRelationship(hub, other, "LINK")
		require.NoError(t, err)
	}
	assert.Equal(t, 200, count(t, tx, hub, Outgoing))
	assert.Equal(t, 200, count(t, tx, other, Incoming, "LINK"))
	commit(t, tx)

	tx = begin(t, db)
	assert.Equal(t, 200, count(t, tx, hub, Outgoing))
	reads := store.BatchReads()
	assert.Equal(t, 200, count(t, tx, hub, Both))
	assert.Equal(t, reads, store.BatchReads(), "cached batches are not fetched again")
	require.NoError(t, tx.Close(context.Background()))

	db.ClearCache()
	tx = begin(t, db)
	defer tx.Close(context.Background())
	assert.Equal(t, 200, count(t, tx, hub, Outgoing))
	ids := collect(t, tx, other, Incoming)
	assert.Len(t, ids, 200)
	assert.True(t, slices.IsSorted(ids))
}

func TestRelationships_CommitDuringPartialLoad(t *testing.T) {
	db, _, cleanup := setupDatabase(t, 5)
	defer cleanup()

	tx := begin(t, db)
	hub, err := tx.CreateNode()
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		_, err := tx.CreateRelationship(hub, hub, "SELF")
		require.NoError(t, err)
	}
	commit(t, tx)
	db.ClearCache()

	reader := begin(t, db)
	defer reader.Close(context.Background())
	it, err := reader.Relationships(hub, Outgoing)
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Next())

	// Commit more while the reader holds a partially loaded chain.
	writer := begin(t, db)
	for i := 0; i < 4; i++ {
		_, err := writer.CreateRelationship(hub, hub, "SELF")
		require.NoError(t, err)
	}
	commit(t, writer)

	n := 1
	for it.Next() {
		n++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 16, n)
}

func TestRelationships_LoopReturnedOnce(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	tx := begin(t, db)
	n, err := tx.CreateNode()
	require.NoError(t, err)
	loop, err := tx.CreateRelationship(n, n, "SELF")
	require.NoError(t, err)

	check := func(tx *Transaction) {
		assert.Equal(t, []RelationshipID{loop}, collect(t, tx, n, Both))
		assert.Equal(t, []RelationshipID{loop}, collect(t, tx, n, Outgoing))
		assert.Equal(t, []RelationshipID{loop}, collect(t, tx, n, Incoming))
	}
	check(tx)
	commit(t, tx)

	db.ClearCache()
	tx = begin(t, db)
	defer tx.Close(context.Background())
	check(tx)
}

func TestRelationships_NestedIterationOverHub(t *testing.T) {
	db, _, cleanup := setupDatabase(t, 3)
	defer cleanup()

	tx := begin(t, db)
	hub, err := tx.CreateNode()
	require.NoError(t, err)
	leaves := make([]NodeID, 10)
	for i := range leaves {
		leaves[i], err = tx.CreateNode()
		require.NoError(t, err)
		_, err = tx.CreateRelationship(hub, leaves[i], "HAS")
		require.NoError(t, err)
		for j := 0; j < 4; j++ {
			_, err = tx.CreateRelationship(leaves[i], hub, "BACK")
			require.NoError(t, err)
		}
	}
	commit(t, tx)
	db.ClearCache()

	tx = begin(t, db)
	defer tx.Close(context.Background())

	outer, err := tx.Relationships(hub, Outgoing, "HAS")
	require.NoError(t, err)
	defer outer.Close()

	visited := 0
	for outer.Next() {
		leaf, err := outer.Relationship().OtherNode(hub)
		require.NoError(t, err)
		inner, err := tx.Relationships(leaf, Both)
		require.NoError(t, err)
		n := 0
		for inner.Next() {
			n++
		}
		require.NoError(t, inner.Err())
		require.NoError(t, inner.Close())
		assert.Equal(t, 5, n)
		visited++
	}
	require.NoError(t, outer.Err())
	assert.Equal(t, 10, visited)
	assert.Equal(t, 40, count(t, tx, hub, Incoming, "BACK"))
}

func TestRelationships_DeleteDuringIteration(t *testing.T) {
	db, _, cleanup := setupDatabase(t, 2)
	defer cleanup()

	nodes := createNodes(t, db, 2)
	tx := begin(t, db)
	var ids []RelationshipID
	for i := 0; i < 6; i++ {
		id, err := tx.CreateRelationship(nodes[0], nodes[1], "T")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	commit(t, tx)
	db.ClearCache()

	tx = begin(t, db)
	defer tx.Close(context.Background())
	it, err := tx.Relationships(nodes[0], Outgoing)
	require.NoError(t, err)
	defer it.Close()

	var seen []RelationshipID
	for it.Next() {
		seen = append(seen, it.Relationship().ID)
		if len(seen) == 1 {
			require.NoError(t, tx.DeleteRelationship(ids[4]))
		}
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []RelationshipID{ids[0], ids[1], ids[2], ids[3], ids[5]}, seen)
}

func TestRelationships_IteratorLifecycle(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 2)
	tx := begin(t, db)
	defer tx.Close(context.Background())
	for i := 0; i < 3; i++ {
		_, err := tx.CreateRelationship(nodes[0], nodes[1], "T")
		require.NoError(t, err)
	}

	it, err := tx.Relationships(nodes[0], Both)
	require.NoError(t, err)
	require.True(t, it.Next())
	require.NoError(t, it.Close())
	require.NoError(t, it.Close())
	assert.False(t, it.Next(), "closed iterator yields nothing")

	_, err = tx.Relationships(nodes[0], Direction(9))
	assert.True(t, IsInvalidArgument(err))
	_, err = tx.Relationships(nodes[0], Both, "")
	assert.True(t, IsInvalidArgument(err))
	_, err = tx.Relationships(777, Both)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestRelationships_IteratorEndsWithTransaction(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 2)
	tx := begin(t, db)
	for i := 0; i < 3; i++ {
		_, err := tx.CreateRelationship(nodes[0], nodes[1], "T")
		require.NoError(t, err)
	}
	commit(t, tx)

	tx = begin(t, db)
	it, err := tx.Relationships(nodes[0], Outgoing)
	require.NoError(t, err)
	defer it.Close()
	require.True(t, it.Next())

	require.NoError(t, tx.Close(context.Background()))
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), ErrTransactionNotActive)
}

func TestWithRelationships_StopsEarly(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 2)
	tx := begin(t, db)
	defer tx.Close(context.Background())
	for i := 0; i < 5; i++ {
		_, err := tx.CreateRelationship(nodes[0], nodes[1], "T")
		require.NoError(t, err)
	}

	n := 0
	err := tx.WithRelationships(nodes[0], Outgoing, nil, func(Relationship) error {
		n++
		if n == 2 {
			return ErrStopIteration
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	boom := errors.New("boom")
	err = tx.WithRelationships(nodes[0], Outgoing, nil, func(Relationship) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRelationships_ContextCancelStopsIteration(t *testing.T) {
	db, _, cleanup := setupDatabase(t, DefaultGrabSize)
	defer cleanup()

	nodes := createNodes(t, db, 2)
	ctx, cancel := context.WithCancel(context.Background())
	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer tx.Close(context.Background())
	_, err = tx.CreateRelationship(nodes[0], nodes[1], "T")
	require.NoError(t, err)

	it, err := tx.Relationships(nodes[0], Both)
	require.NoError(t, err)
	defer it.Close()
	cancel()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestLoader_LoadNextBatch(t *testing.T) {
	db, store, cleanup := setupDatabase(t, 4)
	defer cleanup()

	tx := begin(t, db)
	hub, err := tx.CreateNode()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := tx.CreateRelationship(hub, hub, "T")
		require.NoError(t, err)
	}
	commit(t, tx)
	db.ClearCache()

	types, err := db.RelationshipTypes(context.Background())
	require.NoError(t, err)
	typ := types["T"]
	loader := db.Loader()
	assert.Equal(t, 4, loader.GrabSize())

	var total []RelationshipID
	for {
		ids, more, err := loader.LoadNextBatch(context.Background(), hub, typ, Incoming)
		require.NoError(t, err)
		total = append(total, ids...)
		if !more {
			break
		}
		assert.Len(t, ids, 4)
	}
	assert.Len(t, total, 10)

	reads := store.BatchReads()
	ids, more, err := loader.LoadNextBatch(context.Background(), hub, typ, Incoming)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, more)
	assert.Equal(t, reads, store.BatchReads())

	_, _, err = loader.LoadNextBatch(context.Background(), hub, typ, Both)
	assert.True(t, IsInvalidArgument(err))
}

func TestLoader_ConcurrentLoadersShareBatches(t *testing.T) {
	db, store, cleanup := setupDatabase(t, 10)
	defer cleanup()

	tx := begin(t, db)
	hub, err := tx.CreateNode()
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		_, err := tx.CreateRelationship(hub, hub, "T")
		require.NoError(t, err)
	}
	commit(t, tx)
	db.ClearCache()
	before := store.BatchReads()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			rtx, err := db.Begin(context.Background())
			if err != nil {
				return err
			}
			defer rtx.Close(context.Background())
			n, err := rtx.CountRelationships(hub, Outgoing)
			if err != nil {
				return err
			}
			if n != 500 {
				return fmt.Errorf("counted %d relationships, want 500", n)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// 50 full batches plus at most one empty probe at the end.
	assert.LessOrEqual(t, store.BatchReads()-before, int64(51))
}
