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

package objpool

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/rendercore/memkit/unsafex/malloc"
)

// slab is a slot arena: n slots of T carved from one heap allocation.
//
// Whether a slot is free or live is kept in the live bitmap, never in the slot itself.
// gen[i] changes every time slot i is freed, so handles of earlier owners can be told apart.
type slab[T any] struct {
	mem   unsafe.Pointer // start of the heap block
	size  int            // bytes of the heap block
	slots []T
	live  []byte   // 1 bit per slot, set if live
	gen   []uint32 // per slot
	base  int      // pool-wide index of slots[0]
}

func newSlab[T any](h *malloc.Heap, n, base int) (*slab[T], error) {
	size, align := malloc.SizeAlign[T]()
	if n > math.MaxInt/size {
		return nil, fmt.Errorf("%d slots of %d bytes: %w", n, size, malloc.ErrOutOfMemory)
	}
	p, err := h.Alloc(n*size, align)
	if err != nil {
		return nil, err
	}
	return &slab[T]{
		mem:   p,
		size:  n * size,
		slots: unsafe.Slice((*T)(p), n),
		live:  make([]byte, (n+7)>>3),
		gen:   make([]uint32, n),
		base:  base,
	}, nil
}

// release returns the slab memory to h. The slab must not be used afterwards.
func (s *slab[T]) release(h *malloc.Heap) {
	h.Free(s.mem, s.size)
	s.mem = nil
	s.slots = nil
	s.live = nil
	s.gen = nil
}

// indexOf returns the slot index of p, or -1 if p is not a slot of s.
func (s *slab[T]) indexOf(p *T) int {
	if len(s.slots) == 0 {
		return -1
	}
	size, _ := malloc.SizeAlign[T]()
	d := uintptr(unsafe.Pointer(p)) - uintptr(s.mem)
	if uintptr(unsafe.Pointer(p)) < uintptr(s.mem) || d >= uintptr(s.size) {
		return -1
	}
	if d%uintptr(size) != 0 {
		return -1
	}
	return int(d / uintptr(size))
}

func (s *slab[T]) isLive(i int) bool {
	return s.live[i>>3]&(1<<(i&7)) != 0
}

func (s *slab[T]) setLive(i int, live bool) {
	if live {
		s.live[i>>3] |= 1 << (i & 7)
	} else {
		s.live[i>>3] &^= 1 << (i & 7)
	}
}

// liveCount returns the number of live slots.
func (s *slab[T]) liveCount() int {
	n := 0
	for i := range s.slots {
		if s.isLive(i) {
			n++
		}
	}
	return n
}
