package storage

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// MemoryStore is a BackingStore held entirely in process memory. It is the
// reference store for tests and the base of JournalStore.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[NodeID]map[string]Value
	rels   map[RelationshipID]*RelationshipRecord
	chains map[NodeID]map[ChainKey][]RelationshipID // ascending ids
	high   HighWater
	closed bool

	batchReads atomic.Int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:  make(map[NodeID]map[string]Value),
		rels:   make(map[RelationshipID]*RelationshipRecord),
		chains: make(map[NodeID]map[ChainKey][]RelationshipID),
	}
}

var _ BackingStore = (*MemoryStore)(nil)

func (s *MemoryStore) checkOpen() error {
	if s.closed {
		return ErrDatabaseClosed
	}
	return nil
}

// ReadRelationshipBatch implements BackingStore.
func (s *MemoryStore) ReadRelationshipBatch(ctx context.Context, node NodeID, typ TypeID, dir Direction, after RelationshipID, limit int) (RelationshipBatch, error) {
	if err := ctx.Err(); err != nil {
		return RelationshipBatch{}, err
	}
	s.batchReads.Add(1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return RelationshipBatch{}, err
	}

	ids := s.chains[node][ChainKey{Type: typ, Direction: dir}]
	start, found := slices.BinarySearch(ids, after)
	if found {
		start++
	}
	end := len(ids)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	out := make([]RelationshipID, end-start)
	copy(out, ids[start:end])
	return RelationshipBatch{IDs: out, HasMore: end < len(ids)}, nil
}

// ReadNode implements BackingStore.
func (s *MemoryStore) ReadNode(ctx context.Context, id NodeID) (*NodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	props, ok := s.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return &NodeRecord{ID: id, Properties: cloneValues(props)}, nil
}

// ReadRelationship implements BackingStore.
func (s *MemoryStore) ReadRelationship(ctx context.Context, id RelationshipID) (*RelationshipRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rec, ok := s.rels[id]
	if !ok {
		return nil, ErrRelationshipNotFound
	}
	return rec.Clone(), nil
}

// ReadRelationshipGroups implements BackingStore.
func (s *MemoryStore) ReadRelationshipGroups(ctx context.Context, node NodeID) ([]ChainKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	keys := make([]ChainKey, 0, len(s.chains[node]))
	for k := range s.chains[node] {
		keys = append(keys, k)
	}
	return keys, nil
}

// AppendCommittedChanges implements BackingStore.
func (s *MemoryStore) AppendCommittedChanges(ctx context.Context, changes *ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.applyLocked(changes)
	return nil
}

// applyLocked applies a change set. Callers hold s.mu.
func (s *MemoryStore) applyLocked(cs *ChangeSet) {
	for _, id := range cs.CreatedNodes {
		if _, ok := s.nodes[id]; !ok {
			s.nodes[id] = make(map[string]Value)
		}
	}
	for i := range cs.CreatedRelationships {
		rec := cs.CreatedRelationships[i].Clone()
		s.rels[rec.ID] = rec
		for _, m := range rec.Chains() {
			s.addToChain(m, rec.ID)
		}
	}
	for id, change := range cs.NodeProperties {
		if props, ok := s.nodes[id]; ok {
			applyChange(props, change)
		}
	}
	for id, change := range cs.RelationshipProperties {
		if rec, ok := s.rels[id]; ok {
			applyChange(rec.Properties, change)
		}
	}
	for i := range cs.DeletedRelationships {
		rec := &cs.DeletedRelationships[i]
		delete(s.rels, rec.ID)
		for _, m := range rec.Chains() {
			s.removeFromChain(m, rec.ID)
		}
	}
	for _, id := range cs.DeletedNodes {
		delete(s.nodes, id)
		delete(s.chains, id)
	}
	s.high.Raise(cs.HighWater())
}

func (s *MemoryStore) addToChain(m ChainMember, id RelationshipID) {
	byKey, ok := s.chains[m.Node]
	if !ok {
		byKey = make(map[ChainKey][]RelationshipID)
		s.chains[m.Node] = byKey
	}
	ids := byKey[m.Key]
	i, found := slices.BinarySearch(ids, id)
	if !found {
		byKey[m.Key] = slices.Insert(ids, i, id)
	}
}

func (s *MemoryStore) removeFromChain(m ChainMember, id RelationshipID) {
	ids := s.chains[m.Node][m.Key]
	if i, found := slices.BinarySearch(ids, id); found {
		s.chains[m.Node][m.Key] = slices.Delete(ids, i, i+1)
	}
}

func applyChange(props map[string]Value, change PropertyChange) {
	for _, k := range change.Removed {
		delete(props, k)
	}
	for k, v := range change.Set {
		props[k] = v
	}
}

// HighWater implements BackingStore.
func (s *MemoryStore) HighWater(ctx context.Context) (HighWater, error) {
	if err := ctx.Err(); err != nil {
		return HighWater{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.high, s.checkOpen()
}

// Close implements BackingStore. Closing twice is a no-op.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// BatchReads returns how many chain batches have been read.
func (s *MemoryStore) BatchReads() int64 {
	return s.batchReads.Load()
}

// Stats returns the number of stored nodes and relationships.
func (s *MemoryStore) Stats() (nodes, relationships int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.rels)
}
