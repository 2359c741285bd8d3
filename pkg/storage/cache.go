package storage

import (
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dd0wney/cluso-graphcore/pkg/metrics"
)

const loadShardCount = 64

// Cache is the shared, committed view of the graph. Every transaction reads
// through it; only commit mutates it. Entries are bounded by LRU capacity and
// may be dropped at any time, after which they are reloaded from the store.
type Cache struct {
	store   BackingStore
	metrics *metrics.Registry

	nodes *lru.Cache[NodeID, *nodeEntry]
	rels  *lru.Cache[RelationshipID, *relationshipEntry]

	// loadLocks serialize a miss for one entity against commit merging into
	// that entity, so a load that read the store before a commit can never
	// publish after it.
	loadLocks [loadShardCount]sync.Mutex
}

// nodeEntry is the cached committed state of one node.
type nodeEntry struct {
	id NodeID

	mu      sync.RWMutex
	props   Properties
	deleted bool

	// complete is set when the node was created through this cache, so the
	// store holds nothing for it that the cache has not seen.
	complete bool

	groupsMu     sync.Mutex
	groupsLoaded bool
	groups       map[ChainKey]struct{}
	chains       map[ChainKey]*chain
}

// relationshipEntry is the cached committed state of one relationship.
type relationshipEntry struct {
	record RelationshipRecord // endpoints and type only; immutable

	mu      sync.RWMutex
	props   Properties
	deleted bool
}

// NewCache creates a cache over store with the given capacities.
func NewCache(store BackingStore, nodeCapacity, relationshipCapacity int, reg *metrics.Registry) (*Cache, error) {
	c := &Cache{store: store, metrics: reg}

	nodes, err := lru.NewWithEvict(nodeCapacity, func(NodeID, *nodeEntry) {
		reg.RecordEviction("node")
	})
	if err != nil {
		return nil, InvalidArgumentError("new cache", err.Error())
	}
	rels, err := lru.NewWithEvict(relationshipCapacity, func(RelationshipID, *relationshipEntry) {
		reg.RecordEviction("relationship")
	})
	if err != nil {
		return nil, InvalidArgumentError("new cache", err.Error())
	}
	c.nodes = nodes
	c.rels = rels
	return c, nil
}

func (c *Cache) loadLock(ref EntityRef) *sync.Mutex {
	return &c.loadLocks[(ref.ID*2+uint64(ref.Kind))%loadShardCount]
}

func newNodeEntry(id NodeID, props Properties, complete bool) *nodeEntry {
	e := &nodeEntry{
		id:       id,
		props:    props,
		complete: complete,
		chains:   make(map[ChainKey]*chain),
	}
	if complete {
		e.groupsLoaded = true
		e.groups = make(map[ChainKey]struct{})
	}
	return e
}

// node returns the live entry for id, loading it on a miss.
func (c *Cache) node(ctx context.Context, id NodeID) (*nodeEntry, error) {
	if e, ok := c.nodes.Get(id); ok {
		c.metrics.RecordCacheLookup("node", true)
		if e.isDeleted() {
			return nil, NodeNotFoundError("get", id)
		}
		return e, nil
	}
	c.metrics.RecordCacheLookup("node", false)

	lock := c.loadLock(NodeRef(id))
	lock.Lock()
	defer lock.Unlock()

	if e, ok := c.nodes.Peek(id); ok {
		if e.isDeleted() {
			return nil, NodeNotFoundError("get", id)
		}
		return e, nil
	}
	rec, err := c.store.ReadNode(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, NodeNotFoundError("get", id)
		}
		c.metrics.RecordStoreError("read_node")
		return nil, StoreError("read node", err)
	}
	e := newNodeEntry(id, NewProperties(rec.Properties), false)
	c.nodes.Add(id, e)
	return e, nil
}

// relationship returns the live entry for id, loading it on a miss.
func (c *Cache) relationship(ctx context.Context, id RelationshipID) (*relationshipEntry, error) {
	if e, ok := c.rels.Get(id); ok {
		c.metrics.RecordCacheLookup("relationship", true)
		if e.isDeleted() {
			return nil, RelationshipNotFoundError("get", id)
		}
		return e, nil
	}
	c.metrics.RecordCacheLookup("relationship", false)

	lock := c.loadLock(RelationshipRef(id))
	lock.Lock()
	defer lock.Unlock()

	if e, ok := c.rels.Peek(id); ok {
		if e.isDeleted() {
			return nil, RelationshipNotFoundError("get", id)
		}
		return e, nil
	}
	rec, err := c.store.ReadRelationship(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, RelationshipNotFoundError("get", id)
		}
		c.metrics.RecordStoreError("read_relationship")
		return nil, StoreError("read relationship", err)
	}
	e := newRelationshipEntry(rec)
	c.rels.Add(id, e)
	return e, nil
}

func newRelationshipEntry(rec *RelationshipRecord) *relationshipEntry {
	e := &relationshipEntry{props: NewProperties(rec.Properties)}
	e.record = RelationshipRecord{ID: rec.ID, Start: rec.Start, End: rec.End, Type: rec.Type}
	return e
}

// chainKeys lists the chains the node has, loading the group index once.
func (c *Cache) chainKeys(ctx context.Context, e *nodeEntry) ([]ChainKey, error) {
	e.groupsMu.Lock()
	defer e.groupsMu.Unlock()

	if !e.groupsLoaded {
		keys, err := c.store.ReadRelationshipGroups(ctx, e.id)
		if err != nil {
			c.metrics.RecordStoreError("read_groups")
			return nil, StoreError("read relationship groups", err)
		}
		e.groups = make(map[ChainKey]struct{}, len(keys))
		for _, k := range keys {
			e.groups[k] = struct{}{}
		}
		e.groupsLoaded = true
	}

	keys := make([]ChainKey, 0, len(e.groups))
	for k := range e.groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Direction < keys[j].Direction
	})
	return keys, nil
}

// chain returns the cached chain for key, creating an empty one on first use.
func (e *nodeEntry) chain(key ChainKey) *chain {
	e.groupsMu.Lock()
	defer e.groupsMu.Unlock()
	ch, ok := e.chains[key]
	if !ok {
		ch = newChain(e.complete)
		e.chains[key] = ch
	}
	return ch
}

func (e *nodeEntry) addRelationship(key ChainKey, id RelationshipID) {
	e.groupsMu.Lock()
	defer e.groupsMu.Unlock()
	if e.groupsLoaded {
		e.groups[key] = struct{}{}
	}
	ch, ok := e.chains[key]
	if !ok {
		if !e.complete {
			// Not loaded yet; the next load reads it from the store.
			return
		}
		ch = newChain(true)
		e.chains[key] = ch
	}
	ch.insert(id)
}

func (e *nodeEntry) removeRelationship(key ChainKey, id RelationshipID) {
	e.groupsMu.Lock()
	defer e.groupsMu.Unlock()
	if ch, ok := e.chains[key]; ok {
		ch.remove(id)
	}
}

func (e *nodeEntry) properties() Properties {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.props
}

func (e *nodeEntry) isDeleted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deleted
}

func (e *relationshipEntry) properties() Properties {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.props
}

func (e *relationshipEntry) isDeleted() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deleted
}

// apply merges a change set the store has already accepted. Every step is
// idempotent, so racing with loads that saw the new store state is harmless.
func (c *Cache) apply(cs *ChangeSet) {
	for _, id := range cs.CreatedNodes {
		c.withLoadLock(NodeRef(id), func() {
			props := NewProperties(nil).Apply(cs.NodeProperties[id])
			c.nodes.ContainsOrAdd(id, newNodeEntry(id, props, true))
		})
	}

	for i := range cs.CreatedRelationships {
		rec := &cs.CreatedRelationships[i]
		c.withLoadLock(RelationshipRef(rec.ID), func() {
			e := newRelationshipEntry(rec)
			e.props = e.props.Apply(cs.RelationshipProperties[rec.ID])
			c.rels.ContainsOrAdd(rec.ID, e)
		})
		for _, m := range rec.Chains() {
			c.withLoadLock(NodeRef(m.Node), func() {
				if e, ok := c.nodes.Peek(m.Node); ok {
					e.addRelationship(m.Key, rec.ID)
				}
			})
		}
	}

	for id, change := range cs.NodeProperties {
		c.withLoadLock(NodeRef(id), func() {
			if e, ok := c.nodes.Peek(id); ok {
				e.mu.Lock()
				e.props = e.props.Apply(change)
				e.mu.Unlock()
			}
		})
	}
	for id, change := range cs.RelationshipProperties {
		c.withLoadLock(RelationshipRef(id), func() {
			if e, ok := c.rels.Peek(id); ok {
				e.mu.Lock()
				e.props = e.props.Apply(change)
				e.mu.Unlock()
			}
		})
	}

	for i := range cs.DeletedRelationships {
		rec := &cs.DeletedRelationships[i]
		c.withLoadLock(RelationshipRef(rec.ID), func() {
			if e, ok := c.rels.Peek(rec.ID); ok {
				e.mu.Lock()
				e.deleted = true
				e.mu.Unlock()
				c.rels.Remove(rec.ID)
			}
		})
		for _, m := range rec.Chains() {
			c.withLoadLock(NodeRef(m.Node), func() {
				if e, ok := c.nodes.Peek(m.Node); ok {
					e.removeRelationship(m.Key, rec.ID)
				}
			})
		}
	}

	for _, id := range cs.DeletedNodes {
		c.withLoadLock(NodeRef(id), func() {
			if e, ok := c.nodes.Peek(id); ok {
				e.mu.Lock()
				e.deleted = true
				e.mu.Unlock()
				c.nodes.Remove(id)
			}
		})
	}
}

func (c *Cache) withLoadLock(ref EntityRef, fn func()) {
	lock := c.loadLock(ref)
	lock.Lock()
	defer lock.Unlock()
	fn()
}

// Clear drops every cached entry. Iterators already holding a chain keep
// using it; new reads page from the store again.
func (c *Cache) Clear() {
	c.nodes.Purge()
	c.rels.Purge()
}

// Len returns the number of cached nodes and relationships.
func (c *Cache) Len() (nodes, relationships int) {
	return c.nodes.Len(), c.rels.Len()
}
