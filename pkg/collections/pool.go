// Package collections provides generic data structures for efficient data processing.
package collections

import (
	"sync"
)

// SlicePool is a generic pool for slices of any type. Pooled slices keep
// their capacity and are returned empty.
type SlicePool[T any] struct {
	pool       sync.Pool
	initialCap int
}

// NewSlicePool creates a new slice pool with the given initial capacity.
func NewSlicePool[T any](initialCap int) *SlicePool[T] {
	if initialCap <= 0 {
		initialCap = 256
	}
	return &SlicePool[T]{
		initialCap: initialCap,
		pool: sync.Pool{
			New: func() interface{} {
				s := make([]T, 0, initialCap)
				return &s
			},
		},
	}
}

// Get gets a slice from the pool.
func (p *SlicePool[T]) Get() *[]T {
	return p.pool.Get().(*[]T)
}

// Put returns a slice to the pool after clearing it.
func (p *SlicePool[T]) Put(s *[]T) {
	*s = (*s)[:0]
	p.pool.Put(s)
}

// ByteSlicePool is a pool for []byte wire-encoding buffers.
var ByteSlicePool = NewSlicePool[byte](256)

// Float64SlicePool is a pool for []float64 slices.
var Float64SlicePool = NewSlicePool[float64](256)
