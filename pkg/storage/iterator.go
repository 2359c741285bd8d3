package storage

import (
	"github.com/dd0wney/cluso-graphcore/pkg/pools"
)

var relationshipIDPool = pools.NewSlicePool[RelationshipID]()

// chainCursor walks one cached chain by remembering the last id it emitted,
// so it stays valid while the chain grows or commits publish new snapshots.
type chainCursor struct {
	key       ChainKey
	ch        *chain
	last      RelationshipID
	started   bool
	skipLoops bool // loops were already returned by the outgoing pass
}

// RelationshipIterator is a lazy sequence of relationships over a
// transaction's composed view: committed relationships first, paged through
// the loader as needed, then those created by the transaction. It must be
// closed, and it must be consumed on the goroutine that owns the
// transaction.
type RelationshipIterator struct {
	tx   *Transaction
	node NodeID

	chains []chainCursor
	ci     int

	created    []RelationshipID // pooled
	createdPos int

	current Relationship
	err     error
	closed  bool
}

// Next advances to the next relationship. It returns false at the end of the
// sequence, on error, or once the iterator is closed. Closing the
// transaction ends iteration with ErrTransactionNotActive.
func (it *RelationshipIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	if it.tx.closed {
		it.err = NewError("iterate relationships").Node(it.node).Cause(ErrTransactionNotActive).Err()
		return false
	}
	if err := it.tx.ctx.Err(); err != nil {
		it.err = err
		return false
	}

	for it.ci < len(it.chains) {
		cc := &it.chains[it.ci]
		snap := cc.ch.load()
		pos := 0
		if cc.started {
			pos = snap.after(cc.last)
		}
		if pos >= len(snap.ids) {
			if snap.full {
				it.ci++
				continue
			}
			if _, err := it.tx.db.loader.extend(it.tx.ctx, it.node, cc.key, cc.ch, snap); err != nil {
				it.err = err
				return false
			}
			continue
		}

		id := snap.ids[pos]
		cc.last = id
		cc.started = true

		if _, deleted := it.tx.deletedRels[id]; deleted {
			continue
		}
		entry, err := it.tx.db.cache.relationship(it.tx.ctx, id)
		if err != nil {
			if IsNotFound(err) {
				// Deleted by a commit that landed after the snapshot.
				continue
			}
			it.err = err
			return false
		}
		if cc.skipLoops && entry.record.IsLoop() {
			continue
		}
		rel, err := it.tx.view(&entry.record)
		if err != nil {
			it.err = err
			return false
		}
		it.current = rel
		return true
	}

	for it.createdPos < len(it.created) {
		id := it.created[it.createdPos]
		it.createdPos++
		rec, ok := it.tx.createdRels[id]
		if !ok {
			continue
		}
		rel, err := it.tx.view(rec)
		if err != nil {
			it.err = err
			return false
		}
		it.current = rel
		return true
	}
	return false
}

// Relationship returns the relationship Next advanced to.
func (it *RelationshipIterator) Relationship() Relationship {
	return it.current
}

// Err returns the error that stopped iteration, if any.
func (it *RelationshipIterator) Err() error {
	return it.err
}

// Close releases the iterator's buffers. Closing twice is a no-op. The
// loader's cached chains are unaffected by closing, or by never closing.
func (it *RelationshipIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if it.created != nil {
		relationshipIDPool.Put(it.created)
		it.created = nil
	}
	it.chains = nil
	return nil
}
