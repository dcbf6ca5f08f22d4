// Package idgen hands out process-wide, never reused identifiers.
package idgen

import (
	"sync/atomic"

	"golang.org/x/exp/constraints"
)

// Counter is a monotonically increasing allocator. The zero value starts
// at zero. Next does not check for overflow; a 64-bit counter cannot wrap
// in practice and narrower ones are the caller's choice.
type Counter[T constraints.Unsigned] struct {
	n atomic.Uint64
}

// Next returns the current value and advances the counter.
func (c *Counter[T]) Next() T {
	return T(c.n.Add(1) - 1)
}

// Peek returns the value the next call to Next will return.
func (c *Counter[T]) Peek() T {
	return T(c.n.Load())
}
