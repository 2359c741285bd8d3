package storage

import (
	"context"
	"sync"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
)

// Transaction represents a database transaction. It is owned by a single
// goroutine, as are the iterators it opens.
type Transaction struct {
	db     *Database
	ctx    context.Context
	id     string
	logger logging.Logger
	mu     sync.Mutex

	closed  bool
	success bool
	failure bool

	// Pending operations
	createdNodes  map[NodeID]struct{}
	createdRels   map[RelationshipID]*RelationshipRecord
	createdByNode map[NodeID][]RelationshipID // ascending
	deletedNodes  map[NodeID]struct{}
	droppedNodes  map[NodeID]struct{} // created then deleted here; never reach the store
	deletedRels   map[RelationshipID]*RelationshipRecord
	nodeProps     map[NodeID]*propertyDelta
	relProps      map[RelationshipID]*propertyDelta
}

func newTransaction(ctx context.Context, db *Database, id string) *Transaction {
	return &Transaction{
		db:            db,
		ctx:           ctx,
		id:            id,
		logger:        db.logger.With(logging.TxID(id)),
		createdNodes:  make(map[NodeID]struct{}),
		createdRels:   make(map[RelationshipID]*RelationshipRecord),
		createdByNode: make(map[NodeID][]RelationshipID),
		deletedNodes:  make(map[NodeID]struct{}),
		droppedNodes:  make(map[NodeID]struct{}),
		deletedRels:   make(map[RelationshipID]*RelationshipRecord),
		nodeProps:     make(map[NodeID]*propertyDelta),
		relProps:      make(map[RelationshipID]*propertyDelta),
	}
}

// ID returns the transaction's correlation id.
func (tx *Transaction) ID() string {
	return tx.id
}

// Success marks the transaction to commit on Close.
func (tx *Transaction) Success() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.success = true
}

// Failure marks the transaction to roll back on Close. It overrides Success.
func (tx *Transaction) Failure() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.failure = true
}

// Active reports whether the transaction is still open.
func (tx *Transaction) Active() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return !tx.closed
}

func (tx *Transaction) checkActive(op string) error {
	if tx.closed {
		return NewError(op).Cause(ErrTransactionNotActive).Err()
	}
	return nil
}

// deletedHere reports whether this transaction deleted the node, whether it
// was committed or created here.
func (tx *Transaction) deletedHere(id NodeID) bool {
	if _, ok := tx.deletedNodes[id]; ok {
		return true
	}
	_, ok := tx.droppedNodes[id]
	return ok
}

// nodeState resolves a node against the composed view. created is true for
// nodes created by this transaction, which have no cache entry.
func (tx *Transaction) nodeState(op string, id NodeID) (created bool, entry *nodeEntry, err error) {
	if tx.deletedHere(id) {
		return false, nil, NodeNotFoundError(op, id)
	}
	if _, ok := tx.createdNodes[id]; ok {
		return true, nil, nil
	}
	entry, err = tx.db.cache.node(tx.ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return false, nil, NodeNotFoundError(op, id)
		}
		return false, nil, err
	}
	return false, entry, nil
}

// relationshipRecord resolves a relationship against the composed view.
func (tx *Transaction) relationshipRecord(op string, id RelationshipID) (*RelationshipRecord, *relationshipEntry, error) {
	if _, ok := tx.deletedRels[id]; ok {
		return nil, nil, RelationshipNotFoundError(op, id)
	}
	if rec, ok := tx.createdRels[id]; ok {
		return rec, nil, nil
	}
	entry, err := tx.db.cache.relationship(tx.ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, RelationshipNotFoundError(op, id)
		}
		return nil, nil, err
	}
	return &entry.record, entry, nil
}

// baseProperties returns the committed properties under ref's pending
// delta, or an empty container for entities created here.
func (tx *Transaction) baseProperties(op string, ref EntityRef) (Properties, error) {
	switch ref.Kind {
	case KindNode:
		created, entry, err := tx.nodeState(op, NodeID(ref.ID))
		if err != nil || created {
			return Properties{}, err
		}
		return entry.properties(), nil
	case KindRelationship:
		_, entry, err := tx.relationshipRecord(op, RelationshipID(ref.ID))
		if err != nil || entry == nil {
			return Properties{}, err
		}
		return entry.properties(), nil
	default:
		return Properties{}, InvalidArgumentError(op, "unknown entity kind")
	}
}

func (tx *Transaction) delta(ref EntityRef, create bool) *propertyDelta {
	switch ref.Kind {
	case KindNode:
		d, ok := tx.nodeProps[NodeID(ref.ID)]
		if !ok && create {
			d = newPropertyDelta()
			tx.nodeProps[NodeID(ref.ID)] = d
		}
		return d
	case KindRelationship:
		d, ok := tx.relProps[RelationshipID(ref.ID)]
		if !ok && create {
			d = newPropertyDelta()
			tx.relProps[RelationshipID(ref.ID)] = d
		}
		return d
	}
	return nil
}

func (tx *Transaction) view(rec *RelationshipRecord) (Relationship, error) {
	name, err := tx.db.tokens.name(tx.ctx, rec.Type)
	if err != nil {
		return Relationship{}, err
	}
	return relationshipFromRecord(rec, name), nil
}
