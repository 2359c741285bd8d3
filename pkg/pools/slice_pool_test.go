package pools

import (
	"sync"
	"testing"
)

func TestSlicePool_Get(t *testing.T) {
	pool := NewSlicePool[uint64]()

	tests := []struct {
		name   string
		size   int
		minCap int
	}{
		{"small", 8, 8},
		{"small_max", 16, 16},
		{"medium", 32, 32},
		{"medium_max", 64, 64},
		{"large", 128, 128},
		{"large_max", 256, 256},
		{"oversized", 1000, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := pool.Get(tt.size)
			if len(s) != 0 {
				t.Errorf("Get(%d) length = %d, want 0", tt.size, len(s))
			}
			if cap(s) < tt.minCap {
				t.Errorf("Get(%d) capacity = %d, want >= %d", tt.size, cap(s), tt.minCap)
			}
		})
	}
}

func TestSlicePool_PutAndReuse(t *testing.T) {
	pool := NewSlicePool[uint64]()

	for i := 0; i < 10; i++ {
		s := pool.Get(16)
		s = append(s, 1, 2, 3, 4, 5)
		pool.Put(s)
	}

	s := pool.Get(16)
	if len(s) != 0 {
		t.Errorf("After Put, Get returned slice with length %d, want 0", len(s))
	}
	if got := s[:cap(s)][0]; got != 0 {
		t.Errorf("pooled slice was not cleared, first element = %d", got)
	}
}

func TestSlicePool_GrownSliceStaysInSmallerClass(t *testing.T) {
	pool := NewSlicePool[uint64]()

	// A slice grown past its class by append must never be handed out for a
	// larger request than it can hold.
	s := pool.Get(16)
	for i := 0; i < 40; i++ {
		s = append(s, uint64(i))
	}
	pool.Put(s)

	got := pool.Get(64)
	if cap(got) < 64 {
		t.Errorf("Get(64) capacity = %d, want >= 64", cap(got))
	}
}

func TestSlicePool_Concurrent(t *testing.T) {
	pool := NewSlicePool[uint64]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := pool.Get(32)
				s = append(s, 1, 2, 3, 4, 5, 6, 7, 8)
				pool.Put(s)
			}
		}()
	}

	wg.Wait()
}
