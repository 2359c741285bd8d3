package badgerstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/dd0wney/cluso-graphcore/pkg/logging"
	"github.com/dd0wney/cluso-graphcore/pkg/storage"
)

// maxConflictRetries bounds retries of a commit that lost a race on the
// shared high-water keys. Entity keys never conflict: callers hold entity
// locks across the append.
const maxConflictRetries = 64

// AppendCommittedChanges implements storage.BackingStore. The whole change
// set is one badger transaction.
func (s *Store) AppendCommittedChanges(ctx context.Context, cs *storage.ChangeSet) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.withUpdate(func(txn *badger.Txn) error {
			return applyChangeSet(txn, cs)
		})
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			break
		}
	}
	if err != nil {
		s.logger.Error("commit failed", logging.Error(err))
		return err
	}
	return nil
}

func applyChangeSet(txn *badger.Txn, cs *storage.ChangeSet) error {
	for _, id := range cs.CreatedNodes {
		if _, err := txn.Get(nodeKey(id)); err == nil {
			continue
		}
		if err := putNode(txn, id, nil); err != nil {
			return err
		}
	}

	for i := range cs.CreatedRelationships {
		rec := cs.CreatedRelationships[i]
		if err := putRelationship(txn, &rec); err != nil {
			return err
		}
		for _, m := range rec.Chains() {
			if err := txn.Set(chainKey(m, rec.ID), nil); err != nil {
				return err
			}
			if err := adjustGroup(txn, m, 1); err != nil {
				return err
			}
		}
	}

	for id, change := range cs.NodeProperties {
		props, err := getNode(txn, id)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := putNode(txn, id, applyChange(props, change)); err != nil {
			return err
		}
	}
	for id, change := range cs.RelationshipProperties {
		rec, err := getRelationship(txn, id)
		if storage.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		rec.Properties = applyChange(rec.Properties, change)
		if err := putRelationship(txn, rec); err != nil {
			return err
		}
	}

	for i := range cs.DeletedRelationships {
		rec := &cs.DeletedRelationships[i]
		if err := txn.Delete(relKey(rec.ID)); err != nil {
			return err
		}
		for _, m := range rec.Chains() {
			if err := txn.Delete(chainKey(m, rec.ID)); err != nil {
				return err
			}
			if err := adjustGroup(txn, m, -1); err != nil {
				return err
			}
		}
	}

	for _, id := range cs.DeletedNodes {
		if err := txn.Delete(nodeKey(id)); err != nil {
			return err
		}
	}

	return raiseHighWater(txn, cs.HighWater())
}

func putNode(txn *badger.Txn, id storage.NodeID, props map[string]storage.Value) error {
	data, err := encodeNode(props)
	if err != nil {
		return fmt.Errorf("failed to encode node %d: %w", id, err)
	}
	return txn.Set(nodeKey(id), data)
}

func putRelationship(txn *badger.Txn, rec *storage.RelationshipRecord) error {
	data, err := encodeRelationship(rec)
	if err != nil {
		return fmt.Errorf("failed to encode relationship %d: %w", rec.ID, err)
	}
	return txn.Set(relKey(rec.ID), data)
}

// adjustGroup keeps the per-chain member count. The group key disappears
// with the chain's last member.
func adjustGroup(txn *badger.Txn, m storage.ChainMember, delta int64) error {
	key := groupKey(m.Node, m.Key)
	n, err := getUint64(txn, key)
	if err != nil {
		return err
	}
	next := int64(n) + delta
	if next <= 0 {
		return txn.Delete(key)
	}
	return txn.Set(key, encodeUint64(uint64(next)))
}

func raiseHighWater(txn *badger.Txn, hw storage.HighWater) error {
	for _, kv := range []struct {
		key string
		val uint64
	}{
		{metaHighNode, uint64(hw.Node)},
		{metaHighRel, uint64(hw.Relationship)},
	} {
		if kv.val == 0 {
			continue
		}
		cur, err := getUint64(txn, metaKey(kv.key))
		if err != nil {
			return err
		}
		if kv.val > cur {
			if err := txn.Set(metaKey(kv.key), encodeUint64(kv.val)); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyChange(props map[string]storage.Value, change storage.PropertyChange) map[string]storage.Value {
	if props == nil {
		props = make(map[string]storage.Value, len(change.Set))
	}
	for _, k := range change.Removed {
		delete(props, k)
	}
	for k, v := range change.Set {
		props[k] = v
	}
	return props
}
