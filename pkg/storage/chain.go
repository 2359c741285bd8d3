package storage

import (
	"slices"
	"sync"
	"sync/atomic"
)

// chainSnapshot is one published state of a cached chain. A snapshot is never
// modified after it is published: extension appends past len(ids) of the
// previous snapshot, and commit merges publish a copy.
type chainSnapshot struct {
	ids    []RelationshipID // ascending
	cursor RelationshipID   // last id read from the store
	full   bool             // the whole chain is cached
}

// after returns the position of the first id strictly greater than id.
func (s *chainSnapshot) after(id RelationshipID) int {
	i, found := slices.BinarySearch(s.ids, id)
	if found {
		return i + 1
	}
	return i
}

// chain is the cached prefix of one (node, type, direction) chain. Readers
// load the current snapshot without locking; extend serializes writers.
type chain struct {
	snap   atomic.Pointer[chainSnapshot]
	extend sync.Mutex
}

func newChain(full bool) *chain {
	c := &chain{}
	c.snap.Store(&chainSnapshot{full: full})
	return c
}

func (c *chain) load() *chainSnapshot {
	return c.snap.Load()
}

// extendFrom pages the next batch after the cursor of the current snapshot.
// observed is the snapshot the caller ran out of; if another caller already
// moved past it, nothing is fetched. The returned snapshot is the latest.
func (c *chain) extendFrom(observed *chainSnapshot, fetch func(after RelationshipID) (RelationshipBatch, error)) (*chainSnapshot, int, error) {
	c.extend.Lock()
	defer c.extend.Unlock()

	cur := c.snap.Load()
	if cur.full || cur.cursor > observed.cursor {
		return cur, 0, nil
	}

	batch, err := fetch(cur.cursor)
	if err != nil {
		return cur, 0, err
	}

	next := &chainSnapshot{
		ids:    cur.ids,
		cursor: cur.cursor,
		full:   !batch.HasMore,
	}
	for _, id := range batch.IDs {
		if id <= next.cursor {
			continue
		}
		next.ids = append(next.ids, id)
		next.cursor = id
	}
	c.snap.Store(next)
	return next, len(next.ids) - len(cur.ids), nil
}

// insert records a committed relationship. Ids beyond the cursor of a
// partial chain are left for the store to supply on a later batch. Inserting
// an id already present does nothing.
func (c *chain) insert(id RelationshipID) {
	c.extend.Lock()
	defer c.extend.Unlock()

	cur := c.snap.Load()
	if !cur.full && id > cur.cursor {
		return
	}
	i, found := slices.BinarySearch(cur.ids, id)
	if found {
		return
	}
	ids := make([]RelationshipID, 0, len(cur.ids)+1)
	ids = append(ids, cur.ids[:i]...)
	ids = append(ids, id)
	ids = append(ids, cur.ids[i:]...)
	cursor := cur.cursor
	if id > cursor {
		cursor = id
	}
	c.snap.Store(&chainSnapshot{ids: ids, cursor: cursor, full: cur.full})
}

// remove drops a deleted relationship. Removing an absent id does nothing.
func (c *chain) remove(id RelationshipID) {
	c.extend.Lock()
	defer c.extend.Unlock()

	cur := c.snap.Load()
	i, found := slices.BinarySearch(cur.ids, id)
	if !found {
		return
	}
	ids := make([]RelationshipID, 0, len(cur.ids)-1)
	ids = append(ids, cur.ids[:i]...)
	ids = append(ids, cur.ids[i+1:]...)
	c.snap.Store(&chainSnapshot{ids: ids, cursor: cur.cursor, full: cur.full})
}
