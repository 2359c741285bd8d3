package storage

import (
	"sort"
)

// Properties is an immutable key/value container attached to a node or a
// relationship. Mutators return a new container and leave the receiver
// untouched, so a committed container can be shared by every transaction.
type Properties struct {
	values map[string]Value
}

// NewProperties copies m into a container. Null values are dropped.
func NewProperties(m map[string]Value) Properties {
	if len(m) == 0 {
		return Properties{}
	}
	values := make(map[string]Value, len(m))
	for k, v := range m {
		if k == "" || v.IsNull() {
			continue
		}
		values[k] = v
	}
	return Properties{values: values}
}

// Len returns the number of properties.
func (p Properties) Len() int {
	return len(p.values)
}

// Get returns the value for key.
func (p Properties) Get(key string) (Value, error) {
	if err := validateKey("get property", key); err != nil {
		return Value{}, err
	}
	v, ok := p.values[key]
	if !ok {
		return Value{}, NewError("get property").Field(key).Cause(ErrPropertyNotFound).Err()
	}
	return v, nil
}

// Lookup returns the value for key and whether it is present.
func (p Properties) Lookup(key string) (Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present. An empty key is never present.
func (p Properties) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// All returns a copy of every property. An empty container yields an empty,
// non-nil map.
func (p Properties) All() map[string]Value {
	return cloneValues(p.values)
}

// Subset returns the requested keys that are present. Absent keys are
// omitted; an empty key is rejected.
func (p Properties) Subset(keys ...string) (map[string]Value, error) {
	out := make(map[string]Value, len(keys))
	for _, key := range keys {
		if err := validateKey("get properties", key); err != nil {
			return nil, err
		}
		if v, ok := p.values[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}

// Keys returns the property keys in sorted order.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a container where key maps to v, replacing any previous value
// and type.
func (p Properties) With(key string, v Value) (Properties, error) {
	if err := validateKey("set property", key); err != nil {
		return p, err
	}
	if err := validateValue("set property", key, v); err != nil {
		return p, err
	}
	values := make(map[string]Value, len(p.values)+1)
	for k, existing := range p.values {
		values[k] = existing
	}
	values[key] = v
	return Properties{values: values}, nil
}

// Without returns a container with key removed, plus the previous value. When
// key was absent the receiver is returned unchanged with ok == false.
func (p Properties) Without(key string) (Properties, Value, bool) {
	prev, ok := p.values[key]
	if !ok {
		return p, Value{}, false
	}
	values := make(map[string]Value, len(p.values)-1)
	for k, existing := range p.values {
		if k != key {
			values[k] = existing
		}
	}
	return Properties{values: values}, prev, true
}

// Apply returns the container with a committed change applied.
func (p Properties) Apply(change PropertyChange) Properties {
	if change.Empty() {
		return p
	}
	values := make(map[string]Value, len(p.values)+len(change.Set))
	for k, v := range p.values {
		values[k] = v
	}
	for _, k := range change.Removed {
		delete(values, k)
	}
	for k, v := range change.Set {
		values[k] = v
	}
	return Properties{values: values}
}

func validateKey(op, key string) error {
	if key == "" {
		return InvalidArgumentError(op, "empty property key")
	}
	return nil
}

func validateValue(op, key string, v Value) error {
	if v.IsNull() {
		return NewError(op).Field(key).Context("null value").Cause(ErrInvalidArgument).Err()
	}
	return nil
}

// PropertyChange is the committed delta for one entity. Removed keys are
// applied before Set.
type PropertyChange struct {
	Set     map[string]Value `json:"set,omitempty"`
	Removed []string         `json:"removed,omitempty"`
}

// Empty reports whether the change does nothing.
func (c PropertyChange) Empty() bool {
	return len(c.Set) == 0 && len(c.Removed) == 0
}

// propertyDelta is a transaction's pending change to one entity's properties.
// A key is in at most one of set and removed.
type propertyDelta struct {
	set     map[string]Value
	removed map[string]struct{}
}

func newPropertyDelta() *propertyDelta {
	return &propertyDelta{
		set:     make(map[string]Value),
		removed: make(map[string]struct{}),
	}
}

func (d *propertyDelta) put(key string, v Value) {
	delete(d.removed, key)
	d.set[key] = v
}

func (d *propertyDelta) remove(key string) {
	delete(d.set, key)
	d.removed[key] = struct{}{}
}

// lookup resolves key against the delta. decided is false when the delta
// says nothing about key and the committed value applies.
func (d *propertyDelta) lookup(key string) (v Value, present, decided bool) {
	if d == nil {
		return Value{}, false, false
	}
	if v, ok := d.set[key]; ok {
		return v, true, true
	}
	if _, ok := d.removed[key]; ok {
		return Value{}, false, true
	}
	return Value{}, false, false
}

func (d *propertyDelta) overlay(base Properties) Properties {
	if d == nil {
		return base
	}
	return base.Apply(d.change())
}

func (d *propertyDelta) change() PropertyChange {
	change := PropertyChange{}
	if len(d.set) > 0 {
		change.Set = cloneValues(d.set)
	}
	if len(d.removed) > 0 {
		change.Removed = make([]string, 0, len(d.removed))
		for k := range d.removed {
			change.Removed = append(change.Removed, k)
		}
		sort.Strings(change.Removed)
	}
	return change
}
