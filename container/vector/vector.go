/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package vector implements a growable array whose storage comes from a malloc.Heap.
package vector

import (
	"errors"
	"math"

	"github.com/rendercore/memkit/unsafex/malloc"
)

var errIndexOutOfRange = errors.New("vector: index out of range")

const minCap = 4

// Vector is an arena-backed dynamic array.
// type T must NOT contain pointer, see malloc.CheckType.
//
// Elements returned by At or Slice are only valid until the next growth or Release.
type Vector[T any] struct {
	alloc malloc.Allocator[T]
	vec   []T
}

// New creates a Vector with at least the given capacity.
// capacity == 0 takes no memory until the first Append.
func New[T any](a malloc.Allocator[T], capacity int) (*Vector[T], error) {
	if err := malloc.CheckType[T](); err != nil {
		return nil, err
	}
	v := &Vector[T]{alloc: a}
	if capacity > 0 {
		buf, err := a.Allocate(capacity)
		if err != nil {
			return nil, err
		}
		v.vec = buf[:0]
	}
	return v, nil
}

// Len returns the current number of elements in the vector.
func (v *Vector[T]) Len() int {
	return len(v.vec)
}

// Cap returns the current capacity of the vector.
func (v *Vector[T]) Cap() int {
	return cap(v.vec)
}

// At returns the element at index i.
func (v *Vector[T]) At(i int) (T, error) {
	if i < 0 || i >= len(v.vec) {
		var zero T
		return zero, errIndexOutOfRange
	}
	return v.vec[i], nil
}

// Set replaces the element at index i.
func (v *Vector[T]) Set(i int, x T) error {
	if i < 0 || i >= len(v.vec) {
		return errIndexOutOfRange
	}
	v.vec[i] = x
	return nil
}

// Slice returns the elements as a slice sharing the vector storage.
func (v *Vector[T]) Slice() []T {
	return v.vec
}

// Append adds values to the end of the vector, growing it if needed.
// On error the vector is left unchanged.
func (v *Vector[T]) Append(values ...T) error {
	if n := len(v.vec) + len(values); n > cap(v.vec) {
		if err := v.grow(n); err != nil {
			return err
		}
	}
	v.vec = append(v.vec, values...)
	return nil
}

// Truncate drops all elements after the first n. It never releases memory.
func (v *Vector[T]) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(v.vec) {
		v.vec = v.vec[:n]
	}
}

// Release returns the storage to the heap. The vector is empty and usable afterwards.
func (v *Vector[T]) Release() {
	v.alloc.Deallocate(v.vec)
	v.vec = nil
}

func (v *Vector[T]) grow(need int) error {
	newCap := cap(v.vec) * 2
	if newCap < minCap {
		newCap = minCap
	}
	for newCap < need {
		if newCap > math.MaxInt/2 {
			newCap = need
			break
		}
		newCap *= 2
	}
	buf, err := v.alloc.Allocate(newCap)
	if err != nil {
		return err
	}
	n := copy(buf, v.vec)
	v.alloc.Deallocate(v.vec)
	v.vec = buf[:n]
	return nil
}
