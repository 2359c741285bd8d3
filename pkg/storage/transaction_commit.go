package storage

import (
	"context"
	"slices"
	"time"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/metrics"
)

// Close ends the transaction. It commits when Success was called and Failure
// was not; otherwise every pending change is discarded. Closing twice is a
// no-op. A failed commit leaves the store and cache untouched.
func (tx *Transaction) Close(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return nil
	}
	tx.closed = true

	if !tx.success || tx.failure {
		tx.discard()
		tx.db.metrics.RecordTransaction(metrics.OutcomeRolledBack)
		tx.logger.Debug("transaction rolled back")
		return nil
	}

	err := tx.commit(ctx)
	tx.discard()
	if err != nil {
		tx.db.metrics.RecordTransaction(metrics.OutcomeFailed)
		tx.logger.Warn("transaction commit failed", logging.Error(err))
		return err
	}
	tx.db.metrics.RecordTransaction(metrics.OutcomeCommitted)
	return nil
}

// Renew commits the current unit of work, unless Failure was called, and
// returns a fresh transaction on the same database. The receiver is closed
// either way.
func (tx *Transaction) Renew(ctx context.Context) (*Transaction, error) {
	tx.Success()
	if err := tx.Close(ctx); err != nil {
		return nil, err
	}
	return tx.db.Begin(ctx)
}

// discard drops every pending change. Since changes are buffered, nothing
// was written to the cache or store and there is nothing to undo.
func (tx *Transaction) discard() {
	tx.createdNodes = make(map[NodeID]struct{})
	tx.createdRels = make(map[RelationshipID]*RelationshipRecord)
	tx.createdByNode = make(map[NodeID][]RelationshipID)
	tx.deletedNodes = make(map[NodeID]struct{})
	tx.droppedNodes = make(map[NodeID]struct{})
	tx.deletedRels = make(map[RelationshipID]*RelationshipRecord)
	tx.nodeProps = make(map[NodeID]*propertyDelta)
	tx.relProps = make(map[RelationshipID]*propertyDelta)
}

func (tx *Transaction) commit(ctx context.Context) error {
	if tx.db.closed.Load() {
		return NewError("commit").Cause(ErrDatabaseClosed).Err()
	}

	cs := tx.changeSet()
	if cs.Empty() {
		return nil
	}

	began := time.Now()
	release := tx.db.locks.Acquire(tx.touched(cs))
	defer release()
	lockWait := time.Since(began)

	// Validation reads committed state with the commit's context, not the
	// one the transaction was opened with.
	opened := tx.ctx
	tx.ctx = ctx
	defer func() { tx.ctx = opened }()

	if err := tx.validate(cs); err != nil {
		return err
	}

	if err := tx.db.store.AppendCommittedChanges(ctx, cs); err != nil {
		tx.db.metrics.RecordStoreError("append")
		tx.logger.Error("commit append failed", logging.Error(err))
		return StoreError("commit", err)
	}
	tx.db.cache.apply(cs)

	duration := time.Since(began)
	tx.db.metrics.RecordCommit(duration, lockWait)
	tx.logger.Debug("transaction committed",
		logging.Int("created_nodes", len(cs.CreatedNodes)),
		logging.Int("created_relationships", len(cs.CreatedRelationships)),
		logging.Int("deleted_relationships", len(cs.DeletedRelationships)),
		logging.Int("deleted_nodes", len(cs.DeletedNodes)),
		logging.Latency(duration))
	return nil
}

// changeSet builds the change set in deterministic id order.
func (tx *Transaction) changeSet() *ChangeSet {
	cs := &ChangeSet{}

	for id := range tx.createdNodes {
		cs.CreatedNodes = append(cs.CreatedNodes, id)
	}
	slices.Sort(cs.CreatedNodes)

	for _, rec := range tx.createdRels {
		cs.CreatedRelationships = append(cs.CreatedRelationships, *rec)
	}
	slices.SortFunc(cs.CreatedRelationships, func(a, b RelationshipRecord) int {
		return compareIDs(a.ID, b.ID)
	})

	for id, d := range tx.nodeProps {
		if change := d.change(); !change.Empty() {
			if cs.NodeProperties == nil {
				cs.NodeProperties = make(map[NodeID]PropertyChange)
			}
			cs.NodeProperties[id] = change
		}
	}
	for id, d := range tx.relProps {
		if change := d.change(); !change.Empty() {
			if cs.RelationshipProperties == nil {
				cs.RelationshipProperties = make(map[RelationshipID]PropertyChange)
			}
			cs.RelationshipProperties[id] = change
		}
	}

	for _, rec := range tx.deletedRels {
		cs.DeletedRelationships = append(cs.DeletedRelationships, *rec)
	}
	slices.SortFunc(cs.DeletedRelationships, func(a, b RelationshipRecord) int {
		return compareIDs(a.ID, b.ID)
	})

	for id := range tx.deletedNodes {
		cs.DeletedNodes = append(cs.DeletedNodes, id)
	}
	slices.Sort(cs.DeletedNodes)
	return cs
}

func compareIDs[T ~uint64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// touched lists every entity the change set reads or writes, including the
// endpoints of created and deleted relationships.
func (tx *Transaction) touched(cs *ChangeSet) []EntityRef {
	refs := make([]EntityRef, 0, len(cs.CreatedNodes)+3*len(cs.CreatedRelationships)+
		len(cs.NodeProperties)+len(cs.RelationshipProperties)+3*len(cs.DeletedRelationships)+len(cs.DeletedNodes))

	for _, id := range cs.CreatedNodes {
		refs = append(refs, NodeRef(id))
	}
	for i := range cs.CreatedRelationships {
		rec := &cs.CreatedRelationships[i]
		refs = append(refs, RelationshipRef(rec.ID), NodeRef(rec.Start), NodeRef(rec.End))
	}
	for id := range cs.NodeProperties {
		refs = append(refs, NodeRef(id))
	}
	for id := range cs.RelationshipProperties {
		refs = append(refs, RelationshipRef(id))
	}
	for i := range cs.DeletedRelationships {
		rec := &cs.DeletedRelationships[i]
		refs = append(refs, RelationshipRef(rec.ID), NodeRef(rec.Start), NodeRef(rec.End))
	}
	for _, id := range cs.DeletedNodes {
		refs = append(refs, NodeRef(id))
	}
	return refs
}

// validate checks the change set against committed state while every
// touched entity is locked. Another transaction may have committed a delete
// or a new relationship since this one read the graph.
func (tx *Transaction) validate(cs *ChangeSet) error {
	conflict := func(reason string, err error) error {
		tx.db.metrics.RecordConflict(reason)
		return err
	}

	for i := range cs.CreatedRelationships {
		rec := &cs.CreatedRelationships[i]
		for _, n := range [2]NodeID{rec.Start, rec.End} {
			if _, ok := tx.createdNodes[n]; ok {
				continue
			}
			if err := tx.committedNode(n); err != nil {
				if !IsNotFound(err) {
					return err
				}
				return conflict("endpoint_deleted", NewError("commit").Node(n).
					Context("relationship endpoint deleted by another transaction").
					Cause(ErrConcurrentModification).Err())
			}
		}
	}

	for i := range cs.DeletedRelationships {
		id := cs.DeletedRelationships[i].ID
		if _, err := tx.db.cache.relationship(tx.ctx, id); err != nil {
			if !IsNotFound(err) {
				return err
			}
			return conflict("already_deleted", NewError("commit").Relationship(id).
				Context("deleted by another transaction").
				Cause(ErrConcurrentModification).Err())
		}
	}

	for id := range cs.NodeProperties {
		if _, ok := tx.createdNodes[id]; ok {
			continue
		}
		if err := tx.committedNode(id); err != nil {
			if !IsNotFound(err) {
				return err
			}
			return conflict("already_deleted", NewError("commit").Node(id).
				Context("properties changed on a node deleted by another transaction").
				Cause(ErrConcurrentModification).Err())
		}
	}
	for id := range cs.RelationshipProperties {
		if _, ok := tx.createdRels[id]; ok {
			continue
		}
		if _, err := tx.db.cache.relationship(tx.ctx, id); err != nil {
			if !IsNotFound(err) {
				return err
			}
			return conflict("already_deleted", NewError("commit").Relationship(id).
				Context("properties changed on a relationship deleted by another transaction").
				Cause(ErrConcurrentModification).Err())
		}
	}

	for _, id := range cs.DeletedNodes {
		if err := tx.committedNode(id); err != nil {
			if !IsNotFound(err) {
				return err
			}
			return conflict("already_deleted", NewError("commit").Node(id).
				Context("deleted by another transaction").
				Cause(ErrConcurrentModification).Err())
		}
		attached, err := tx.committedRelationshipsRemain(id)
		if err != nil {
			return err
		}
		if attached {
			return conflict("node_gained_relationships", NewError("commit").Node(id).
				Context("deleted node still has relationships").
				Cause(ErrConstraintViolation).Err())
		}
	}
	return nil
}

func (tx *Transaction) committedNode(id NodeID) error {
	_, err := tx.db.cache.node(tx.ctx, id)
	return err
}

// committedRelationshipsRemain reports whether the node has a committed
// relationship this transaction does not delete.
func (tx *Transaction) committedRelationshipsRemain(node NodeID) (bool, error) {
	entry, err := tx.db.cache.node(tx.ctx, node)
	if err != nil {
		return false, err
	}
	keys, err := tx.db.cache.chainKeys(tx.ctx, entry)
	if err != nil {
		return false, err
	}
	for _, key := range keys {
		ch := entry.chain(key)
		snap := ch.load()
		var last RelationshipID
		started := false
		for {
			pos := 0
			if started {
				pos = snap.after(last)
			}
			for _, id := range snap.ids[pos:] {
				if _, ok := tx.deletedRels[id]; !ok {
					return true, nil
				}
				last, started = id, true
			}
			if snap.full {
				break
			}
			if snap, err = tx.db.loader.extend(tx.ctx, node, key, ch, snap); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}
