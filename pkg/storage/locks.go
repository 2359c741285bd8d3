package storage

import (
	"sort"
	"sync"
)

const lockShardCount = 256

// LockManager hands out per-entity commit locks. Lock objects exist only
// while someone holds or waits for them; the shard maps are guarded by 256
// stripe mutexes so unrelated entities never contend on the same map lock.
type LockManager struct {
	shards [lockShardCount]lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[EntityRef]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

// NewLockManager creates an empty lock manager.
func NewLockManager() *LockManager {
	lm := &LockManager{}
	for i := range lm.shards {
		lm.shards[i].locks = make(map[EntityRef]*entityLock)
	}
	return lm
}

func (lm *LockManager) shard(ref EntityRef) *lockShard {
	h := ref.ID*31 + uint64(ref.Kind)
	return &lm.shards[h%lockShardCount]
}

func (lm *LockManager) ref(ref EntityRef) *entityLock {
	s := lm.shard(ref)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[ref]
	if !ok {
		l = &entityLock{}
		s.locks[ref] = l
	}
	l.refs++
	return l
}

func (lm *LockManager) unref(ref EntityRef, l *entityLock) {
	s := lm.shard(ref)
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, ref)
	}
}

// Acquire locks every ref in ascending (kind, id) order and returns the
// function that releases them. Duplicates are ignored. Two callers with
// overlapping sets can never deadlock because both lock in the same order.
func (lm *LockManager) Acquire(refs []EntityRef) (release func()) {
	sorted := make([]EntityRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].less(sorted[j]) })

	held := make([]*entityLock, 0, len(sorted))
	keys := make([]EntityRef, 0, len(sorted))
	for i, ref := range sorted {
		if i > 0 && sorted[i-1] == ref {
			continue
		}
		l := lm.ref(ref)
		l.mu.Lock()
		held = append(held, l)
		keys = append(keys, ref)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].mu.Unlock()
				lm.unref(keys[i], held[i])
			}
		})
	}
}

// Held returns the number of entities currently locked or waited on.
func (lm *LockManager) Held() int {
	n := 0
	for i := range lm.shards {
		s := &lm.shards[i]
		s.mu.Lock()
		n += len(s.locks)
		s.mu.Unlock()
	}
	return n
}
