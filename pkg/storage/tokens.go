package storage

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/dd0wney/cluso-graphcore/pkg/metrics"
)

// TokenAllocator hands out relationship type ids that are stable across every
// process sharing a store. A replica implementation forwards to a primary.
type TokenAllocator interface {
	// Allocate returns the id for name, creating it if needed.
	Allocate(ctx context.Context, name string) (int, error)
	// Tokens returns every known name and its id.
	Tokens(ctx context.Context) (map[string]int, error)
}

// tokenHolder caches the allocator's name/id table in both directions.
type tokenHolder struct {
	allocator TokenAllocator
	metrics   *metrics.Registry

	mu     sync.RWMutex
	byName map[string]TypeID
	byID   map[TypeID]string
}

func newTokenHolder(allocator TokenAllocator, reg *metrics.Registry) *tokenHolder {
	return &tokenHolder{
		allocator: allocator,
		metrics:   reg,
		byName:    make(map[string]TypeID),
		byID:      make(map[TypeID]string),
	}
}

// refresh pulls the complete table from the allocator.
func (h *tokenHolder) refresh(ctx context.Context) error {
	tokens, err := h.allocator.Tokens(ctx)
	if err != nil {
		return StoreError("load tokens", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, id := range tokens {
		if id < 0 || id > math.MaxUint32 {
			return NewError("load tokens").Context(fmt.Sprintf("token %q has id %d", name, id)).
				Cause(ErrStorageUnavailable).Err()
		}
		h.byName[name] = TypeID(id)
		h.byID[TypeID(id)] = name
	}
	return nil
}

// lookup resolves an existing name without allocating.
func (h *tokenHolder) lookup(name string) (TypeID, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.byName[name]
	return id, ok
}

// idFor returns the id for name, allocating it on first use.
func (h *tokenHolder) idFor(ctx context.Context, name string) (TypeID, error) {
	if name == "" {
		return 0, InvalidArgumentError("relationship type", "empty type name")
	}
	if id, ok := h.lookup(name); ok {
		h.metrics.RecordTokenLookup(false)
		return id, nil
	}

	raw, err := h.allocator.Allocate(ctx, name)
	if err != nil {
		return 0, StoreError("allocate relationship type", err)
	}
	if raw < 0 || raw > math.MaxUint32 {
		return 0, NewError("allocate relationship type").Context(fmt.Sprintf("id %d out of range", raw)).
			Cause(ErrStorageUnavailable).Err()
	}
	h.metrics.RecordTokenLookup(true)

	id := TypeID(raw)
	h.mu.Lock()
	h.byName[name] = id
	h.byID[id] = name
	h.mu.Unlock()
	return id, nil
}

// name returns the type name for id, refreshing once on a miss since another
// process may have allocated it.
func (h *tokenHolder) name(ctx context.Context, id TypeID) (string, error) {
	h.mu.RLock()
	name, ok := h.byID[id]
	h.mu.RUnlock()
	if ok {
		return name, nil
	}
	if err := h.refresh(ctx); err != nil {
		return "", err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if name, ok := h.byID[id]; ok {
		return name, nil
	}
	return "", NewError("relationship type").Context(fmt.Sprintf("unknown type id %d", id)).
		Cause(ErrNotFound).Err()
}

// names returns every known type name. Used by tests and inspection.
func (h *tokenHolder) names() map[string]TypeID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]TypeID, len(h.byName))
	for k, v := range h.byName {
		out[k] = v
	}
	return out
}
