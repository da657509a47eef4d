package malloc

import (
	"fmt"
	"math"
	"unsafe"
)

// Allocator hands out typed memory from a Heap.
// It's what arena-backed containers use instead of make.
//
// An Allocator holds nothing but its heap, so two allocators
// over the same heap are interchangeable and compare equal with ==.
// T must be pointer-free, see CheckType.
type Allocator[T any] struct {
	h *Heap
}

// NewAllocator returns an allocator of T drawing from h.
func NewAllocator[T any](h *Heap) Allocator[T] {
	return Allocator[T]{h: h}
}

// Rebind returns an allocator of U sharing the heap of a.
func Rebind[U, T any](a Allocator[T]) Allocator[U] {
	return Allocator[U]{h: a.h}
}

// Heap returns the underlying heap.
func (a Allocator[T]) Heap() *Heap {
	return a.h
}

// Equal reports whether memory from a can be returned through b.
func (a Allocator[T]) Equal(b Allocator[T]) bool {
	return a.h == b.h
}

// Allocate returns a slice of n uninitialized elements, len == cap == n.
func (a Allocator[T]) Allocate(n int) ([]T, error) {
	if err := CheckType[T](); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	var zero T
	size, align := sizeAlign(zero)
	if n > math.MaxInt/size {
		return nil, fmt.Errorf("%d elements of %d bytes: %w", n, size, ErrOutOfMemory)
	}
	p, err := a.h.Alloc(size*n, align)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(p), n), nil
}

// Deallocate returns s to the heap. cap(s) elements are released,
// so s must keep the cap it was allocated with. Nil or empty is a no-op.
func (a Allocator[T]) Deallocate(s []T) {
	if cap(s) == 0 {
		return
	}
	var zero T
	size, _ := sizeAlign(zero)
	a.h.Free(unsafe.Pointer(unsafe.SliceData(s)), size*cap(s))
}

// New allocates a single zeroed T.
func New[T any](a Allocator[T]) (*T, error) {
	s, err := a.Allocate(1)
	if err != nil {
		return nil, err
	}
	var zero T
	s[0] = zero
	return &s[0], nil
}

// Delete releases a T returned by New.
func Delete[T any](a Allocator[T], p *T) {
	if p == nil {
		return
	}
	a.Deallocate(unsafe.Slice(p, 1))
}

// sizeAlign returns the slot size and alignment of a value.
// Zero-sized types still take one byte so each element has its own address.
func sizeAlign[T any](v T) (size, align int) {
	size, align = int(unsafe.Sizeof(v)), int(unsafe.Alignof(v))
	if size == 0 {
		size = 1
	}
	return
}

// SizeAlign returns the size and alignment used to store one T in the arena.
func SizeAlign[T any]() (size, align int) {
	var zero T
	return sizeAlign(zero)
}
