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
	"reflect"

	"go.uber.org/zap"

	"github.com/rendercore/memkit/unsafex/malloc"
)

// Registry holds one Pool per element type, all drawing from the same heap.
type Registry struct {
	heap          *malloc.Heap
	slotsPerArena int
	logger        *zap.Logger

	pools  map[reflect.Type]any
	closes []func() // in creation order
}

// NewRegistry creates a registry whose pools use slotsPerArena slots per arena.
// A non-positive slotsPerArena means malloc.DefaultSlotsPerArena.
func NewRegistry(h *malloc.Heap, slotsPerArena int, l *zap.Logger) *Registry {
	if slotsPerArena <= 0 {
		slotsPerArena = malloc.DefaultSlotsPerArena
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Registry{
		heap:          h,
		slotsPerArena: slotsPerArena,
		logger:        l,
		pools:         make(map[reflect.Type]any),
	}
}

// NewRegistryFromConfig creates a registry with the pool settings of c.
func NewRegistryFromConfig(h *malloc.Heap, c malloc.Config, l *zap.Logger) *Registry {
	return NewRegistry(h, c.SlotsPerArena, l)
}

// For returns the pool of T in r, creating it on first use.
// opts apply on top of the registry settings when the pool is created,
// and are ignored once it exists.
func For[T any](r *Registry, opts ...Option[T]) (*Pool[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if p, ok := r.pools[t]; ok {
		return p.(*Pool[T]), nil
	}
	opts = append([]Option[T]{
		WithSlotsPerArena[T](r.slotsPerArena),
		WithLogger[T](r.logger),
	}, opts...)
	p, err := NewPool[T](r.heap, opts...)
	if err != nil {
		return nil, err
	}
	r.pools[t] = p
	r.closes = append(r.closes, p.Close)
	return p, nil
}

// Alloc allocates a T from its pool in r.
func Alloc[T any](r *Registry, init func(*T)) (*Handle[T], error) {
	p, err := For[T](r)
	if err != nil {
		return nil, err
	}
	return p.Alloc(init)
}

// Close closes every pool of r, the most recently created first,
// and forgets them.
func (r *Registry) Close() {
	for i := len(r.closes) - 1; i >= 0; i-- {
		r.closes[i]()
	}
	r.closes = nil
	r.pools = make(map[reflect.Type]any)
}

// Len returns the number of pools in r.
func (r *Registry) Len() int {
	return len(r.pools)
}
