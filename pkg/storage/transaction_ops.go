package storage

import (
	"slices"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
)

// CreateNode creates a node within the transaction
func (tx *Transaction) CreateNode() (NodeID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive("create node"); err != nil {
		return 0, err
	}

	// Allocate ID but don't add to the cache until commit
	id := tx.db.allocateNodeID()
	tx.createdNodes[id] = struct{}{}
	return id, nil
}

// CreateRelationship creates a relationship of the named type from start to
// end. The type token is allocated on first use even if the transaction
// later rolls back.
func (tx *Transaction) CreateRelationship(start, end NodeID, relType string) (RelationshipID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "create relationship"
	if err := tx.checkActive(op); err != nil {
		return 0, err
	}

	for _, n := range [2]NodeID{start, end} {
		if tx.deletedHere(n) {
			return 0, NewError(op).Node(n).Context("endpoint deleted in this transaction").
				Cause(ErrInvalidOperand).Err()
		}
		if _, _, err := tx.nodeState(op, n); err != nil {
			return 0, err
		}
	}

	typeID, err := tx.db.tokens.idFor(tx.ctx, relType)
	if err != nil {
		return 0, err
	}

	id := tx.db.allocateRelationshipID()
	rec := &RelationshipRecord{ID: id, Start: start, End: end, Type: typeID}
	tx.createdRels[id] = rec
	tx.createdByNode[start] = append(tx.createdByNode[start], id)
	if end != start {
		tx.createdByNode[end] = append(tx.createdByNode[end], id)
	}
	return id, nil
}

// DeleteRelationship deletes a relationship. Deleting it a second time in
// the same transaction reports ErrNotFound and leaves the first delete in
// place.
func (tx *Transaction) DeleteRelationship(id RelationshipID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive("delete relationship"); err != nil {
		return err
	}
	return tx.deleteRelationshipLocked(id)
}

func (tx *Transaction) deleteRelationshipLocked(id RelationshipID) error {
	const op = "delete relationship"
	rec, entry, err := tx.relationshipRecord(op, id)
	if err != nil {
		return err
	}

	if entry == nil {
		// Created here: forget it entirely.
		delete(tx.createdRels, id)
		tx.dropCreated(rec.Start, id)
		if rec.End != rec.Start {
			tx.dropCreated(rec.End, id)
		}
		delete(tx.relProps, id)
		return nil
	}

	tx.deletedRels[id] = &RelationshipRecord{ID: rec.ID, Start: rec.Start, End: rec.End, Type: rec.Type}
	delete(tx.relProps, id)
	return nil
}

func (tx *Transaction) dropCreated(node NodeID, id RelationshipID) {
	ids := tx.createdByNode[node]
	if i, found := slices.BinarySearch(ids, id); found {
		ids = slices.Delete(ids, i, i+1)
	}
	if len(ids) == 0 {
		delete(tx.createdByNode, node)
		return
	}
	tx.createdByNode[node] = ids
}

// DeleteNode deletes a node that has no relationships left in this
// transaction's view. ErrConstraintViolation otherwise.
func (tx *Transaction) DeleteNode(id NodeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive("delete node"); err != nil {
		return err
	}
	return tx.deleteNodeLocked(id)
}

func (tx *Transaction) deleteNodeLocked(id NodeID) error {
	const op = "delete node"
	created, _, err := tx.nodeState(op, id)
	if err != nil {
		return err
	}

	attached, err := tx.hasRelationshipsLocked(id)
	if err != nil {
		return err
	}
	if attached {
		return NewError(op).Node(id).Context("node still has relationships").
			Cause(ErrConstraintViolation).Err()
	}

	if created {
		delete(tx.createdNodes, id)
		tx.droppedNodes[id] = struct{}{}
	} else {
		tx.deletedNodes[id] = struct{}{}
	}
	delete(tx.nodeProps, id)
	return nil
}

// DetachDeleteNode deletes a node together with every relationship attached
// to it in this transaction's view.
func (tx *Transaction) DetachDeleteNode(id NodeID) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "detach delete node"
	if err := tx.checkActive(op); err != nil {
		return err
	}
	if _, _, err := tx.nodeState(op, id); err != nil {
		return err
	}

	ids, err := tx.collectRelationshipIDs(id, Both, nil)
	if err != nil {
		return err
	}
	for _, rid := range ids {
		if err := tx.deleteRelationshipLocked(rid); err != nil {
			return err
		}
	}
	tx.logger.Debug("detached relationships before delete",
		logging.NodeID(uint64(id)),
		logging.Count(len(ids)))
	return tx.deleteNodeLocked(id)
}

// GetNode returns the node with its properties as this transaction sees them.
func (tx *Transaction) GetNode(id NodeID) (Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive("get node"); err != nil {
		return Node{}, err
	}
	ref := NodeRef(id)
	base, err := tx.baseProperties("get node", ref)
	if err != nil {
		return Node{}, err
	}
	return Node{ID: id, Properties: tx.delta(ref, false).overlay(base).All()}, nil
}

// GetRelationship returns the relationship as this transaction sees it.
func (tx *Transaction) GetRelationship(id RelationshipID) (Relationship, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "get relationship"
	if err := tx.checkActive(op); err != nil {
		return Relationship{}, err
	}
	rec, _, err := tx.relationshipRecord(op, id)
	if err != nil {
		return Relationship{}, err
	}
	return tx.view(rec)
}

// Property returns one property of a node or relationship.
func (tx *Transaction) Property(ref EntityRef, key string) (Value, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "get property"
	if err := tx.checkActive(op); err != nil {
		return Value{}, err
	}
	v, ok, err := tx.propertyLocked(op, ref, key)
	if err != nil {
		return Value{}, err
	}
	if !ok {
		return Value{}, PropertyNotFoundError(op, ref, key)
	}
	return v, nil
}

func (tx *Transaction) propertyLocked(op string, ref EntityRef, key string) (Value, bool, error) {
	if err := validateKey(op, key); err != nil {
		return Value{}, false, err
	}
	base, err := tx.baseProperties(op, ref)
	if err != nil {
		return Value{}, false, err
	}
	if v, present, decided := tx.delta(ref, false).lookup(key); decided {
		return v, present, nil
	}
	v, ok := base.Lookup(key)
	return v, ok, nil
}

// HasProperty reports whether the property is set. An empty key, a missing
// entity or a closed transaction all report false.
func (tx *Transaction) HasProperty(ref EntityRef, key string) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if key == "" || tx.closed {
		return false
	}
	_, ok, err := tx.propertyLocked("has property", ref, key)
	return err == nil && ok
}

// SetProperty sets key to v, replacing any previous value and type.
func (tx *Transaction) SetProperty(ref EntityRef, key string, v Value) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "set property"
	if err := tx.checkActive(op); err != nil {
		return err
	}
	if err := validateKey(op, key); err != nil {
		return err
	}
	if err := validateValue(op, key, v); err != nil {
		return err
	}
	if _, err := tx.baseProperties(op, ref); err != nil {
		return err
	}
	tx.delta(ref, true).put(key, v)
	return nil
}

// RemoveProperty removes key and returns the previous value. Removing a key
// that is not set is not an error: ok is false.
func (tx *Transaction) RemoveProperty(ref EntityRef, key string) (prev Value, ok bool, err error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "remove property"
	if err := tx.checkActive(op); err != nil {
		return Value{}, false, err
	}
	prev, ok, err = tx.propertyLocked(op, ref, key)
	if err != nil || !ok {
		return Value{}, false, err
	}
	tx.delta(ref, true).remove(key)
	return prev, true, nil
}

// Properties returns every property of a node or relationship.
func (tx *Transaction) Properties(ref EntityRef) (map[string]Value, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "get properties"
	if err := tx.checkActive(op); err != nil {
		return nil, err
	}
	base, err := tx.baseProperties(op, ref)
	if err != nil {
		return nil, err
	}
	return tx.delta(ref, false).overlay(base).All(), nil
}

// PropertiesSubset returns the requested properties that are set. Keys that
// are not set are absent from the result.
func (tx *Transaction) PropertiesSubset(ref EntityRef, keys ...string) (map[string]Value, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "get properties"
	if err := tx.checkActive(op); err != nil {
		return nil, err
	}
	base, err := tx.baseProperties(op, ref)
	if err != nil {
		return nil, err
	}
	return tx.delta(ref, false).overlay(base).Subset(keys...)
}
