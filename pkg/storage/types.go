package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// NodeID identifies a node. IDs are never reused within a store lifetime.
type NodeID uint64

// RelationshipID identifies a relationship.
type RelationshipID uint64

// TypeID is the interned token for a relationship type name.
type TypeID uint32

// Direction selects which side of a node's adjacency is traversed.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
	Both
)

func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "OUTGOING"
	case Incoming:
		return "INCOMING"
	case Both:
		return "BOTH"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Reverse flips Outgoing and Incoming. Both is its own reverse.
func (d Direction) Reverse() Direction {
	switch d {
	case Outgoing:
		return Incoming
	case Incoming:
		return Outgoing
	default:
		return d
	}
}

func (d Direction) valid() bool {
	return d <= Both
}

// ValueType represents the type of a property value
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeStringArray
	TypeIntArray
	TypeFloatArray
	TypeBoolArray
)

func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeStringArray:
		return "string[]"
	case TypeIntArray:
		return "int[]"
	case TypeFloatArray:
		return "float[]"
	case TypeBoolArray:
		return "bool[]"
	default:
		return fmt.Sprintf("ValueType(%d)", uint8(t))
	}
}

// Value represents a typed property value. The zero Value is null and can
// never be stored.
type Value struct {
	Type ValueType
	Data []byte
}

// IsNull reports whether v carries no value.
func (v Value) IsNull() bool {
	return v.Type == TypeNull
}

// Equal reports whether two values have the same type and encoding.
func (v Value) Equal(other Value) bool {
	return v.Type == other.Type && bytes.Equal(v.Data, other.Data)
}

func (v Value) String() string {
	switch v.Type {
	case TypeNull:
		return "null"
	case TypeString:
		return string(v.Data)
	case TypeInt:
		i, _ := v.AsInt()
		return fmt.Sprint(i)
	case TypeFloat:
		f, _ := v.AsFloat()
		return fmt.Sprint(f)
	case TypeBool:
		b, _ := v.AsBool()
		return fmt.Sprint(b)
	case TypeStringArray:
		s, _ := v.AsStringArray()
		return fmt.Sprint(s)
	case TypeIntArray:
		s, _ := v.AsIntArray()
		return fmt.Sprint(s)
	case TypeFloatArray:
		s, _ := v.AsFloatArray()
		return fmt.Sprint(s)
	case TypeBoolArray:
		s, _ := v.AsBoolArray()
		return fmt.Sprint(s)
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

// Helper functions to create typed values
func StringValue(s string) Value {
	return Value{Type: TypeString, Data: []byte(s)}
}

func IntValue(i int64) Value {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, uint64(i))
	return Value{Type: TypeInt, Data: data}
}

func FloatValue(f float64) Value {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(f))
	return Value{Type: TypeFloat, Data: data}
}

func BoolValue(b bool) Value {
	data := []byte{0}
	if b {
		data[0] = 1
	}
	return Value{Type: TypeBool, Data: data}
}

// Arrays are encoded as [4 bytes count][elements]. String elements carry
// their own 4 byte length prefix.

func StringArrayValue(s []string) Value {
	size := 4
	for _, e := range s {
		size += 4 + len(e)
	}
	data := make([]byte, 4, size)
	binary.LittleEndian.PutUint32(data, uint32(len(s)))
	for _, e := range s {
		data = binary.LittleEndian.AppendUint32(data, uint32(len(e)))
		data = append(data, e...)
	}
	return Value{Type: TypeStringArray, Data: data}
}

func IntArrayValue(s []int64) Value {
	data := make([]byte, 4+len(s)*8)
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(s)))
	for i, e := range s {
		binary.LittleEndian.PutUint64(data[4+i*8:12+i*8], uint64(e))
	}
	return Value{Type: TypeIntArray, Data: data}
}

func FloatArrayValue(s []float64) Value {
	data := make([]byte, 4+len(s)*8)
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(s)))
	for i, e := range s {
		binary.LittleEndian.PutUint64(data[4+i*8:12+i*8], math.Float64bits(e))
	}
	return Value{Type: TypeFloatArray, Data: data}
}

func BoolArrayValue(s []bool) Value {
	data := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(s)))
	for i, e := range s {
		if e {
			data[4+i] = 1
		}
	}
	return Value{Type: TypeBoolArray, Data: data}
}

// Decode methods
func (v Value) AsString() (string, error) {
	if v.Type != TypeString {
		return "", fmt.Errorf("value is not a string")
	}
	return string(v.Data), nil
}

func (v Value) AsInt() (int64, error) {
	if v.Type != TypeInt {
		return 0, fmt.Errorf("value is not an int")
	}
	return int64(binary.LittleEndian.Uint64(v.Data)), nil
}

func (v Value) AsFloat() (float64, error) {
	if v.Type != TypeFloat {
		return 0, fmt.Errorf("value is not a float")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.Data)), nil
}

func (v Value) AsBool() (bool, error) {
	if v.Type != TypeBool {
		return false, fmt.Errorf("value is not a bool")
	}
	return v.Data[0] == 1, nil
}

func (v Value) arrayLen(t ValueType, elemSize int) (int, error) {
	if v.Type != t {
		return 0, fmt.Errorf("value is not a %s", t)
	}
	if len(v.Data) < 4 {
		return 0, fmt.Errorf("invalid %s data: too short", t)
	}
	n := int(binary.LittleEndian.Uint32(v.Data[0:4]))
	if elemSize > 0 && len(v.Data) != 4+n*elemSize {
		return 0, fmt.Errorf("invalid %s data: expected %d bytes, got %d", t, 4+n*elemSize, len(v.Data))
	}
	return n, nil
}

func (v Value) AsStringArray() ([]string, error) {
	n, err := v.arrayLen(TypeStringArray, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	rest := v.Data[4:]
	for i := 0; i < n; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("invalid string[] data: truncated at element %d", i)
		}
		l := int(binary.LittleEndian.Uint32(rest[0:4]))
		if len(rest) < 4+l {
			return nil, fmt.Errorf("invalid string[] data: truncated at element %d", i)
		}
		out = append(out, string(rest[4:4+l]))
		rest = rest[4+l:]
	}
	return out, nil
}

func (v Value) AsIntArray() ([]int64, error) {
	n, err := v.arrayLen(TypeIntArray, 8)
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(v.Data[4+i*8 : 12+i*8]))
	}
	return out, nil
}

func (v Value) AsFloatArray() ([]float64, error) {
	n, err := v.arrayLen(TypeFloatArray, 8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(v.Data[4+i*8 : 12+i*8]))
	}
	return out, nil
}

func (v Value) AsBoolArray() ([]bool, error) {
	n, err := v.arrayLen(TypeBoolArray, 1)
	if err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = v.Data[4+i] == 1
	}
	return out, nil
}

// ChainKey names one relationship chain of a node. Stored chains are always
// Outgoing or Incoming.
type ChainKey struct {
	Type      TypeID
	Direction Direction
}

// NodeRecord is the committed state of a node as held by a backing store.
type NodeRecord struct {
	ID         NodeID
	Properties map[string]Value
}

// RelationshipRecord is the committed state of a relationship. Start, End and
// Type never change after creation.
type RelationshipRecord struct {
	ID         RelationshipID
	Start      NodeID
	End        NodeID
	Type       TypeID
	Properties map[string]Value
}

// Clone creates a deep copy of a node record
func (n *NodeRecord) Clone() *NodeRecord {
	return &NodeRecord{ID: n.ID, Properties: cloneValues(n.Properties)}
}

// Clone creates a deep copy of a relationship record
func (r *RelationshipRecord) Clone() *RelationshipRecord {
	clone := *r
	clone.Properties = cloneValues(r.Properties)
	return &clone
}

// IsLoop reports whether the relationship starts and ends on the same node.
func (r *RelationshipRecord) IsLoop() bool {
	return r.Start == r.End
}

// ChainMember places a relationship in one node's chain.
type ChainMember struct {
	Node NodeID
	Key  ChainKey
}

// Chains returns the two chains the relationship belongs to: the start
// node's outgoing chain and the end node's incoming chain. For a loop both
// are on the same node.
func (r *RelationshipRecord) Chains() [2]ChainMember {
	return [2]ChainMember{
		{Node: r.Start, Key: ChainKey{Type: r.Type, Direction: Outgoing}},
		{Node: r.End, Key: ChainKey{Type: r.Type, Direction: Incoming}},
	}
}

func cloneValues(m map[string]Value) map[string]Value {
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
