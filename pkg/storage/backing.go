package storage

import (
	"context"
)

// BackingStore is the durable source and sink for committed graph state. The
// core never assumes a byte layout; it only pages chains, reads records and
// appends committed change sets.
type BackingStore interface {
	// ReadRelationshipBatch returns up to limit relationship ids of one chain,
	// in ascending order, strictly greater than after.
	ReadRelationshipBatch(ctx context.Context, node NodeID, typ TypeID, dir Direction, after RelationshipID, limit int) (RelationshipBatch, error)

	// ReadNode returns a node record. ErrNodeNotFound if absent.
	ReadNode(ctx context.Context, id NodeID) (*NodeRecord, error)

	// ReadRelationship returns a relationship record. ErrRelationshipNotFound
	// if absent.
	ReadRelationship(ctx context.Context, id RelationshipID) (*RelationshipRecord, error)

	// ReadRelationshipGroups lists the chains a node has. A listed chain may
	// be empty.
	ReadRelationshipGroups(ctx context.Context, node NodeID) ([]ChainKey, error)

	// AppendCommittedChanges durably applies one change set. It is all or
	// nothing.
	AppendCommittedChanges(ctx context.Context, changes *ChangeSet) error

	// HighWater returns the largest ids ever allocated.
	HighWater(ctx context.Context) (HighWater, error)

	Close() error
}

// RelationshipBatch is one page of a chain.
type RelationshipBatch struct {
	IDs     []RelationshipID
	HasMore bool
}

// HighWater records the largest node and relationship ids a store has seen.
type HighWater struct {
	Node         NodeID
	Relationship RelationshipID
}

// ChangeSet is everything one transaction commits. Stores apply it in field
// order: created nodes, created relationships, property changes, deleted
// relationships, deleted nodes.
type ChangeSet struct {
	CreatedNodes           []NodeID                          `json:"created_nodes,omitempty"`
	CreatedRelationships   []RelationshipRecord              `json:"created_relationships,omitempty"`
	NodeProperties         map[NodeID]PropertyChange         `json:"node_properties,omitempty"`
	RelationshipProperties map[RelationshipID]PropertyChange `json:"relationship_properties,omitempty"`
	DeletedRelationships   []RelationshipRecord              `json:"deleted_relationships,omitempty"`
	DeletedNodes           []NodeID                          `json:"deleted_nodes,omitempty"`
}

// Empty reports whether the change set would change nothing.
func (c *ChangeSet) Empty() bool {
	return len(c.CreatedNodes) == 0 &&
		len(c.CreatedRelationships) == 0 &&
		len(c.NodeProperties) == 0 &&
		len(c.RelationshipProperties) == 0 &&
		len(c.DeletedRelationships) == 0 &&
		len(c.DeletedNodes) == 0
}

// HighWater returns the largest ids named by the change set.
func (c *ChangeSet) HighWater() HighWater {
	var hw HighWater
	for _, id := range c.CreatedNodes {
		if id > hw.Node {
			hw.Node = id
		}
	}
	for i := range c.CreatedRelationships {
		if id := c.CreatedRelationships[i].ID; id > hw.Relationship {
			hw.Relationship = id
		}
	}
	return hw
}

// Raise lifts hw to cover other.
func (hw *HighWater) Raise(other HighWater) {
	if other.Node > hw.Node {
		hw.Node = other.Node
	}
	if other.Relationship > hw.Relationship {
		hw.Relationship = other.Relationship
	}
}
