package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/tokens"
)

func openJournalDatabase(t *testing.T, dir string) *Database {
	t.Helper()

	store, err := OpenJournalStore(dir, true, logging.NewNopLogger())
	require.NoError(t, err)
	alloc, err := tokens.NewLocalAllocator(store)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.GrabSize = 4
	opts.Tokens = alloc
	db, err := Open(context.Background(), store, opts)
	require.NoError(t, err)
	return db
}

func TestJournalStore_ReplayRestoresGraph(t *testing.T) {
	dir := t.TempDir()
	db := openJournalDatabase(t, dir)

	tx := begin(t, db)
	a, err := tx.CreateNode()
	require.NoError(t, err)
	b, err := tx.CreateNode()
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(NodeRef(a), "name", StringValue("a")))
	var rels []RelationshipID
	for i := 0; i < 10; i++ {
		id, err := tx.CreateRelationship(a, b, "KNOWS")
		require.NoError(t, err)
		rels = append(rels, id)
	}
	_, err = tx.CreateRelationship(b, a, "LIKES")
	require.NoError(t, err)
	commit(t, tx)

	tx = begin(t, db)
	require.NoError(t, tx.DeleteRelationship(rels[3]))
	require.NoError(t, tx.SetProperty(RelationshipRef(rels[0]), "since", IntValue(2020)))
	commit(t, tx)
	require.NoError(t, db.Close())

	db = openJournalDatabase(t, dir)
	defer db.Close()

	tx = begin(t, db)
	defer tx.Close(context.Background())
	assert.Equal(t, 9, count(t, tx, a, Outgoing, "KNOWS"))
	assert.Equal(t, 1, count(t, tx, a, Incoming, "LIKES"))
	assert.Equal(t, 10, count(t, tx, b, Both))

	v, err := tx.Property(NodeRef(a), "name")
	require.NoError(t, err)
	assert.Equal(t, StringValue("a"), v)
	v, err = tx.Property(RelationshipRef(rels[0]), "since")
	require.NoError(t, err)
	assert.Equal(t, IntValue(2020), v)

	_, err = tx.GetRelationship(rels[3])
	assert.ErrorIs(t, err, ErrRelationshipNotFound)

	known, err := db.RelationshipTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]TypeID{"KNOWS": 0, "LIKES": 1}, known)

	// Ids keep increasing across restarts.
	c, err := tx.CreateNode()
	require.NoError(t, err)
	assert.Greater(t, c, b)
}

func TestJournalStore_ClosedStoreIsUnavailable(t *testing.T) {
	store, err := OpenJournalStore(t.TempDir(), false, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.ReadNode(context.Background(), 1)
	assert.True(t, IsClosed(err))
}
