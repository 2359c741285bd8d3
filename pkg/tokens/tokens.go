// Package tokens allocates relationship type tokens: small integer ids for
// type names that are unique across every process sharing a store.
//
// A standalone or primary process allocates with a LocalAllocator. A replica
// uses a Forwarder, which sends each allocation to the primary's Responder
// over a mangos REQ/REP socket pair, so only the primary ever assigns ids.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidName = errors.New("token name must not be empty")
	ErrNotRunning  = errors.New("token forwarder not running")
	ErrRemote      = errors.New("primary rejected token request")
)

// Allocator is implemented by LocalAllocator and Forwarder.
type Allocator interface {
	Allocate(ctx context.Context, name string) (int, error)
	Tokens(ctx context.Context) (map[string]int, error)
}

// Persister stores the token table durably. SaveToken must be durable
// before it returns.
type Persister interface {
	LoadTokens() (map[string]int, error)
	SaveToken(name string, id int) error
}

// LocalAllocator assigns dense ids starting at zero in allocation order.
type LocalAllocator struct {
	mu        sync.Mutex
	tokens    map[string]int
	next      int
	persister Persister
}

// NewLocalAllocator creates an allocator, loading any persisted tokens. A
// nil persister keeps the table in memory only.
func NewLocalAllocator(persister Persister) (*LocalAllocator, error) {
	a := &LocalAllocator{
		tokens:    make(map[string]int),
		persister: persister,
	}
	if persister == nil {
		return a, nil
	}

	loaded, err := persister.LoadTokens()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	for name, id := range loaded {
		a.tokens[name] = id
		if id >= a.next {
			a.next = id + 1
		}
	}
	return a, nil
}

// Allocate returns the id for name, assigning the next id on first use.
func (a *LocalAllocator) Allocate(ctx context.Context, name string) (int, error) {
	if name == "" {
		return 0, ErrInvalidName
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if id, ok := a.tokens[name]; ok {
		return id, nil
	}
	id := a.next
	if a.persister != nil {
		if err := a.persister.SaveToken(name, id); err != nil {
			return 0, fmt.Errorf("failed to persist token %q: %w", name, err)
		}
	}
	a.tokens[name] = id
	a.next++
	return id, nil
}

// Tokens returns a copy of the table.
func (a *LocalAllocator) Tokens(ctx context.Context) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.tokens))
	for k, v := range a.tokens {
		out[k] = v
	}
	return out, nil
}

var _ Allocator = (*LocalAllocator)(nil)
