package pools

import (
	"sync"
)

// maxPooledCap bounds the slices kept for reuse.
const maxPooledCap = 10000

// SlicePool pools slices by size class. The zero value is not usable; create
// one with NewSlicePool.
type SlicePool[T any] struct {
	small  sync.Pool // <= 16 elements
	medium sync.Pool // <= 64 elements
	large  sync.Pool // <= 256 elements
}

// NewSlicePool creates a new slice pool.
func NewSlicePool[T any]() *SlicePool[T] {
	p := &SlicePool[T]{}
	p.small.New = func() any {
		s := make([]T, 0, 16)
		return &s
	}
	p.medium.New = func() any {
		s := make([]T, 0, 64)
		return &s
	}
	p.large.New = func() any {
		s := make([]T, 0, 256)
		return &s
	}
	return p
}

// Get returns an empty slice with at least the requested capacity.
func (p *SlicePool[T]) Get(size int) []T {
	var pool *sync.Pool
	switch {
	case size <= 16:
		pool = &p.small
	case size <= 64:
		pool = &p.medium
	case size <= 256:
		pool = &p.large
	default:
		return make([]T, 0, size)
	}

	sp, ok := pool.Get().(*[]T)
	if !ok || cap(*sp) < size {
		return make([]T, 0, size)
	}
	return (*sp)[:0]
}

// Put returns a slice to the pool. Slices larger than the biggest size class
// are dropped.
func (p *SlicePool[T]) Put(s []T) {
	c := cap(s)
	if c == 0 || c > maxPooledCap {
		return
	}

	clear(s[:c])
	s = s[:0]

	var pool *sync.Pool
	switch {
	case c < 64:
		pool = &p.small
	case c < 256:
		pool = &p.medium
	case c == 256:
		pool = &p.large
	default:
		return
	}

	pool.Put(&s)
}
