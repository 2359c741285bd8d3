package storage

import "fmt"

// EntityKind distinguishes the two entity kinds of the graph.
type EntityKind uint8

const (
	KindNode EntityKind = iota
	KindRelationship
)

func (k EntityKind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindRelationship:
		return "relationship"
	default:
		return fmt.Sprintf("EntityKind(%d)", uint8(k))
	}
}

// EntityRef addresses anything that carries properties.
type EntityRef struct {
	Kind EntityKind
	ID   uint64
}

// NodeRef refers to a node's properties.
func NodeRef(id NodeID) EntityRef {
	return EntityRef{Kind: KindNode, ID: uint64(id)}
}

// RelationshipRef refers to a relationship's properties.
func RelationshipRef(id RelationshipID) EntityRef {
	return EntityRef{Kind: KindRelationship, ID: uint64(id)}
}

func (r EntityRef) String() string {
	return fmt.Sprintf("%s %d", r.Kind, r.ID)
}

// less orders refs by kind then id. Commit acquires locks in this order.
func (r EntityRef) less(other EntityRef) bool {
	if r.Kind != other.Kind {
		return r.Kind < other.Kind
	}
	return r.ID < other.ID
}

// Node is a transaction's view of a node at the time it was read.
type Node struct {
	ID         NodeID
	Properties map[string]Value
}

// Ref returns the property reference for the node.
func (n Node) Ref() EntityRef {
	return NodeRef(n.ID)
}

// Relationship is a transaction's view of a relationship. Endpoints and type
// are fixed for the relationship's lifetime.
type Relationship struct {
	ID     RelationshipID
	Start  NodeID
	End    NodeID
	TypeID TypeID
	Type   string
}

// Ref returns the property reference for the relationship.
func (r Relationship) Ref() EntityRef {
	return RelationshipRef(r.ID)
}

// IsType reports whether the relationship has the named type.
func (r Relationship) IsType(name string) bool {
	return r.Type == name
}

// Nodes returns the start and end node, in that order.
func (r Relationship) Nodes() [2]NodeID {
	return [2]NodeID{r.Start, r.End}
}

// OtherNode returns the endpoint opposite to node.
func (r Relationship) OtherNode(node NodeID) (NodeID, error) {
	switch node {
	case r.Start:
		return r.End, nil
	case r.End:
		return r.Start, nil
	default:
		return 0, NewError("other node").Relationship(r.ID).
			Context(fmt.Sprintf("node %d is not an endpoint", node)).
			Cause(ErrInvalidArgument).Err()
	}
}

func relationshipFromRecord(rec *RelationshipRecord, typeName string) Relationship {
	return Relationship{
		ID:     rec.ID,
		Start:  rec.Start,
		End:    rec.End,
		TypeID: rec.Type,
		Type:   typeName,
	}
}
