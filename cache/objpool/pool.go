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

// Package objpool implements per-type object pools on top of a malloc.Heap.
//
// A Pool grows by whole slot arenas of a fixed number of slots, each one carved
// from the heap by a single allocation. Freed slots are reused most-recently-freed
// first; arenas are only given back to the heap when the pool is closed.
package objpool

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/rendercore/memkit/unsafex/malloc"
)

// ErrZeroSize is returned by NewPool for types that take no memory.
var ErrZeroSize = errors.New("objpool: zero-sized type")

// Destroyer is implemented by types that need cleanup when returned to a pool.
type Destroyer interface {
	Destroy()
}

type options[T any] struct {
	slotsPerArena int
	destructor    func(*T)
	logger        *zap.Logger
}

// Option configures a Pool.
type Option[T any] func(o *options[T])

// WithSlotsPerArena sets the number of slots added each time the pool grows.
// Default: malloc.DefaultSlotsPerArena.
func WithSlotsPerArena[T any](n int) Option[T] {
	return func(o *options[T]) {
		o.slotsPerArena = n
	}
}

// WithDestructor sets the func run on an object before its slot is reused.
// It replaces Destroy if *T implements Destroyer.
func WithDestructor[T any](f func(*T)) Option[T] {
	return func(o *options[T]) {
		o.destructor = f
	}
}

// WithLogger sets the logger of the pool. Default: zap.NewNop().
func WithLogger[T any](l *zap.Logger) Option[T] {
	return func(o *options[T]) {
		if l != nil {
			o.logger = l
		}
	}
}

// Pool is an object pool of T backed by a malloc.Heap.
//
// T must be pointer-free and not zero-sized.
// Like the heap, Pool is NOT goroutine safe.
type Pool[T any] struct {
	heap *malloc.Heap
	name string

	n          int
	destructor func(*T)
	logger     *zap.Logger

	// arenas in creation order; arenas[i] holds global slots [i*n, (i+1)*n).
	arenas []*slab[T]

	// free is a stack of global slot indexes, top is the next slot to hand out.
	free []int

	// epoch changes on Close so handles from before are ignored.
	epoch uint64
}

// NewPool creates an empty pool of T. No memory is taken from h until the first Alloc.
func NewPool[T any](h *malloc.Heap, opts ...Option[T]) (*Pool[T], error) {
	if err := malloc.CheckType[T](); err != nil {
		return nil, err
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Size() == 0 {
		return nil, fmt.Errorf("%v: %w", t, ErrZeroSize)
	}
	o := options[T]{
		slotsPerArena: malloc.DefaultSlotsPerArena,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.slotsPerArena <= 0 {
		return nil, fmt.Errorf("slots per arena must be > 0, got %d", o.slotsPerArena)
	}
	if o.destructor == nil {
		if _, ok := any((*T)(nil)).(Destroyer); ok {
			o.destructor = func(p *T) { any(p).(Destroyer).Destroy() }
		}
	}
	return &Pool[T]{
		heap:       h,
		name:       t.String(),
		n:          o.slotsPerArena,
		destructor: o.destructor,
		logger:     o.logger,
	}, nil
}

// Alloc takes a slot, zeroes it, runs init on it if not nil,
// and returns a handle owning the object.
//
// A new slot arena is taken from the heap if no slot is free;
// the heap's error is returned if that fails.
func (p *Pool[T]) Alloc(init func(*T)) (*Handle[T], error) {
	if len(p.free) == 0 {
		if err := p.grow(); err != nil {
			return nil, err
		}
	}
	top := len(p.free) - 1
	idx := p.free[top]
	p.free = p.free[:top]

	s := p.arenas[idx/p.n]
	i := idx % p.n
	s.setLive(i, true)

	obj := &s.slots[i]
	var zero T
	*obj = zero
	if init != nil {
		init(obj)
	}
	return &Handle[T]{pool: p, ptr: obj, idx: idx, gen: s.gen[i], epoch: p.epoch}, nil
}

// Free destroys the object at obj and makes its slot the next one handed out.
// obj must come from Alloc of this pool; it must not be used afterwards.
// Panics if obj is not a live object of this pool.
func (p *Pool[T]) Free(obj *T) {
	for ai := len(p.arenas) - 1; ai >= 0; ai-- {
		s := p.arenas[ai]
		i := s.indexOf(obj)
		if i < 0 {
			continue
		}
		if !s.isLive(i) {
			panic("objpool: double free or invalid object")
		}
		if p.destructor != nil {
			p.destructor(obj)
		}
		var zero T
		*obj = zero
		s.setLive(i, false)
		s.gen[i]++
		p.free = append(p.free, s.base+i)
		return
	}
	panic("objpool: object not in pool")
}

func (p *Pool[T]) grow() error {
	s, err := newSlab[T](p.heap, p.n, len(p.arenas)*p.n)
	if err != nil {
		return fmt.Errorf("objpool: grow %s: %w", p.name, err)
	}
	p.arenas = append(p.arenas, s)
	// pushed in reverse so slots are handed out in address order
	for i := p.n - 1; i >= 0; i-- {
		p.free = append(p.free, s.base+i)
	}
	p.logger.Debug("objpool: new slot arena",
		zap.String("type", p.name),
		zap.Int("slots", p.n),
		zap.Int("arenas", len(p.arenas)),
	)
	return nil
}

// Close returns every slot arena to the heap, newest first.
// Destructors of objects still live are NOT run, and their handles become no-ops.
// The pool is empty but usable afterwards.
func (p *Pool[T]) Close() {
	if len(p.arenas) == 0 {
		return
	}
	live := p.Live()
	for i := len(p.arenas) - 1; i >= 0; i-- {
		p.arenas[i].release(p.heap)
		p.arenas[i] = nil
	}
	p.logger.Info("objpool: closed",
		zap.String("type", p.name),
		zap.Int("arenas", len(p.arenas)),
		zap.Int("live", live),
	)
	p.arenas = p.arenas[:0]
	p.free = p.free[:0]
	p.epoch++
}

// Arenas returns the number of slot arenas taken from the heap.
func (p *Pool[T]) Arenas() int {
	return len(p.arenas)
}

// Cap returns the total number of slots.
func (p *Pool[T]) Cap() int {
	return len(p.arenas) * p.n
}

// Live returns the number of objects currently allocated.
func (p *Pool[T]) Live() int {
	return p.Cap() - len(p.free)
}

// SlotsPerArena returns the number of slots in each slot arena.
func (p *Pool[T]) SlotsPerArena() int {
	return p.n
}

// owns reports whether slot idx is still in the state a handle saw at gen.
func (p *Pool[T]) owns(idx int, gen uint32, epoch uint64) bool {
	if p.epoch != epoch {
		return false
	}
	s := p.arenas[idx/p.n]
	i := idx % p.n
	return s.isLive(i) && s.gen[i] == gen
}

// Handle owns an object allocated from a Pool.
//
// Copy the *Handle, not the object: the handle is the only owner,
// and Release is what gives the slot back.
// Once the object is freed by any means, the handle no longer sees the slot,
// even after it has been handed out again.
type Handle[T any] struct {
	pool  *Pool[T]
	ptr   *T
	idx   int    // pool-wide slot index
	gen   uint32 // slot generation at Alloc
	epoch uint64
}

// Get returns the object, or nil once released.
func (h *Handle[T]) Get() *T {
	if h.ptr == nil || !h.pool.owns(h.idx, h.gen, h.epoch) {
		return nil
	}
	return h.ptr
}

// Release returns the object to its pool. Calling Release more than once is a no-op.
func (h *Handle[T]) Release() {
	if h.ptr == nil {
		return
	}
	obj := h.ptr
	h.ptr = nil
	if !h.pool.owns(h.idx, h.gen, h.epoch) {
		return
	}
	h.pool.Free(obj)
}
