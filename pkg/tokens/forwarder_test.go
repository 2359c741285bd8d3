package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var inprocSeq atomic.Int64

func inprocAddr() string {
	return fmt.Sprintf("inproc://tokens-test-%d", inprocSeq.Add(1))
}

// setupForwarding starts a responder over a local allocator and a connected
// forwarder.
func setupForwarding(t *testing.T) (*LocalAllocator, *Forwarder, func()) {
	t.Helper()

	addr := inprocAddr()
	factory := NewNNGSocketFactory()

	primary, err := NewLocalAllocator(nil)
	require.NoError(t, err)

	responder, err := NewResponder(factory, ResponderConfig{
		Address:     addr,
		RecvTimeout: 50 * time.Millisecond,
	}, primary)
	require.NoError(t, err)
	require.NoError(t, responder.Start())

	forwarder, err := NewForwarder(factory, ForwarderConfig{
		PrimaryAddr: addr,
		Timeout:     2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, forwarder.Start())

	cleanup := func() {
		forwarder.Stop()
		responder.Stop()
	}
	return primary, forwarder, cleanup
}

func TestForwarder_AllocatesOnPrimary(t *testing.T) {
	primary, forwarder, cleanup := setupForwarding(t)
	defer cleanup()
	ctx := context.Background()

	local, err := primary.Allocate(ctx, "KNOWS")
	require.NoError(t, err)

	remote, err := forwarder.Allocate(ctx, "KNOWS")
	require.NoError(t, err)
	assert.Equal(t, local, remote)

	created, err := forwarder.Allocate(ctx, "LIKES")
	require.NoError(t, err)

	table, err := primary.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, created, table["LIKES"])

	fetched, err := forwarder.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, table, fetched)
}

func TestForwarder_ConcurrentCallers(t *testing.T) {
	_, forwarder, cleanup := setupForwarding(t)
	defer cleanup()
	ctx := context.Background()

	var mu sync.Mutex
	seen := make(map[string]int)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("T%d", i%5)
		g.Go(func() error {
			id, err := forwarder.Allocate(gctx, name)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, ok := seen[name]; ok && prev != id {
				return fmt.Errorf("%s allocated as %d and %d", name, prev, id)
			}
			seen[name] = id
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, 5)
}

func TestForwarder_NotRunning(t *testing.T) {
	forwarder, err := NewForwarder(NewNNGSocketFactory(), ForwarderConfig{PrimaryAddr: inprocAddr()})
	require.NoError(t, err)

	_, err = forwarder.Allocate(context.Background(), "KNOWS")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestForwarder_RemoteErrorSurfaces(t *testing.T) {
	_, forwarder, cleanup := setupForwarding(t)
	defer cleanup()

	_, err := forwarder.roundTrip(context.Background(), Request{Kind: "bogus"})
	assert.ErrorIs(t, err, ErrRemote)
}

func TestResponder_RejectsStaleSequence(t *testing.T) {
	primary, err := NewLocalAllocator(nil)
	require.NoError(t, err)
	r, err := NewResponder(NewNNGSocketFactory(), ResponderConfig{Address: inprocAddr()}, primary)
	require.NoError(t, err)

	send := func(seq uint64) *Response {
		msg, err := json.Marshal(Request{Kind: KindAllocate, Name: "A", Session: "s1", Sequence: seq})
		require.NoError(t, err)
		return r.handle(msg)
	}

	assert.Empty(t, send(5).Error)
	assert.Empty(t, send(5).Error, "a retry repeats the sequence")
	assert.Empty(t, send(6).Error)
	assert.Equal(t, "stale sequence", send(4).Error)

	other, err := json.Marshal(Request{Kind: KindAllocate, Name: "A", Session: "s2", Sequence: 1})
	require.NoError(t, err)
	assert.Empty(t, r.handle(other).Error, "sessions are independent")
}

func TestResponder_MalformedRequest(t *testing.T) {
	primary, err := NewLocalAllocator(nil)
	require.NoError(t, err)
	r, err := NewResponder(NewNNGSocketFactory(), ResponderConfig{Address: inprocAddr()}, primary)
	require.NoError(t, err)

	assert.Equal(t, "malformed request", r.handle([]byte("{not json")).Error)
}
