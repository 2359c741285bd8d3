package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockManager_ReleaseFreesEntries(t *testing.T) {
	lm := NewLockManager()
	release := lm.Acquire([]EntityRef{NodeRef(3), NodeRef(1), RelationshipRef(1), NodeRef(3)})
	assert.Equal(t, 3, lm.Held(), "duplicates are locked once")
	release()
	release()
	assert.Zero(t, lm.Held())
}

func TestLockManager_OverlappingSetsDoNotDeadlock(t *testing.T) {
	lm := NewLockManager()
	a := []EntityRef{NodeRef(1), NodeRef(2), NodeRef(3)}
	b := []EntityRef{NodeRef(3), NodeRef(2), NodeRef(1)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				lm.Acquire(a)()
			}()
			go func() {
				defer wg.Done()
				lm.Acquire(b)()
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
	assert.Zero(t, lm.Held())
}

func TestLockManager_DisjointSetsDoNotBlock(t *testing.T) {
	lm := NewLockManager()
	release := lm.Acquire([]EntityRef{NodeRef(1)})
	defer release()

	acquired := make(chan struct{})
	go func() {
		lm.Acquire([]EntityRef{NodeRef(2)})()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("disjoint lock blocked")
	}
}
