package storage

import (
	"errors"
	"sort"
)

// ErrStopIteration ends WithRelationships early without reporting an error.
var ErrStopIteration = errors.New("stop iteration")

// Relationships opens an iterator over the node's relationships in dir whose
// type is one of types. No types selects every type; repeated types count
// once. A loop is returned once for Both.
func (tx *Transaction) Relationships(node NodeID, dir Direction, types ...string) (*RelationshipIterator, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	const op = "relationships"
	if err := tx.checkActive(op); err != nil {
		return nil, err
	}
	return tx.openIterator(op, node, dir, types)
}

func (tx *Transaction) openIterator(op string, node NodeID, dir Direction, types []string) (*RelationshipIterator, error) {
	if !dir.valid() {
		return nil, InvalidArgumentError(op, "unknown direction")
	}

	all := len(types) == 0
	filter := make(map[TypeID]struct{}, len(types))
	for _, name := range types {
		if name == "" {
			return nil, InvalidArgumentError(op, "empty relationship type")
		}
		// A name never allocated has no relationships anywhere.
		if id, ok := tx.db.tokens.lookup(name); ok {
			filter[id] = struct{}{}
		}
	}
	match := func(t TypeID) bool {
		if all {
			return true
		}
		_, ok := filter[t]
		return ok
	}

	_, entry, err := tx.nodeState(op, node)
	if err != nil {
		return nil, err
	}

	it := &RelationshipIterator{tx: tx, node: node}

	if entry != nil {
		keys, err := tx.db.cache.chainKeys(tx.ctx, entry)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if !match(key.Type) || (dir != Both && key.Direction != dir) {
				continue
			}
			it.chains = append(it.chains, chainCursor{
				key:       key,
				ch:        entry.chain(key),
				skipLoops: dir == Both && key.Direction == Incoming,
			})
		}
	}

	if ids := tx.createdByNode[node]; len(ids) > 0 {
		buf := relationshipIDPool.Get(len(ids))
		for _, id := range ids {
			rec := tx.createdRels[id]
			if !match(rec.Type) {
				continue
			}
			switch {
			case dir == Both,
				dir == Outgoing && rec.Start == node,
				dir == Incoming && rec.End == node:
				buf = append(buf, id)
			}
		}
		it.created = buf
	}
	return it, nil
}

// WithRelationships calls fn for each relationship Relationships would
// return and always closes the iterator. fn may return ErrStopIteration to
// stop early; any other error stops iteration and is returned.
func (tx *Transaction) WithRelationships(node NodeID, dir Direction, types []string, fn func(Relationship) error) error {
	it, err := tx.Relationships(node, dir, types...)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		if err := fn(it.Relationship()); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return it.Err()
}

// CountRelationships counts by enumerating the composed view.
func (tx *Transaction) CountRelationships(node NodeID, dir Direction, types ...string) (int, error) {
	n := 0
	err := tx.WithRelationships(node, dir, types, func(Relationship) error {
		n++
		return nil
	})
	return n, err
}

// RelationshipTypes returns the sorted names of the types the node has at
// least one relationship of.
func (tx *Transaction) RelationshipTypes(node NodeID) ([]string, error) {
	seen := make(map[string]struct{})
	err := tx.WithRelationships(node, Both, nil, func(r Relationship) error {
		seen[r.Type] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// collectRelationshipIDs enumerates while tx.mu is held.
func (tx *Transaction) collectRelationshipIDs(node NodeID, dir Direction, types []string) ([]RelationshipID, error) {
	it, err := tx.openIterator("collect relationships", node, dir, types)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var ids []RelationshipID
	for it.Next() {
		ids = append(ids, it.Relationship().ID)
	}
	return ids, it.Err()
}

// hasRelationshipsLocked reports whether any relationship is attached to
// node in the composed view.
func (tx *Transaction) hasRelationshipsLocked(node NodeID) (bool, error) {
	it, err := tx.openIterator("has relationships", node, Both, nil)
	if err != nil {
		return false, err
	}
	defer it.Close()

	if it.Next() {
		return true, nil
	}
	return false, it.Err()
}
