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

package vector

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendercore/memkit/unsafex/malloc"
)

type index struct {
	a, b, c uint32
}

func TestVector(t *testing.T) {
	h := newTestHeap(t, 64*1024)
	v, err := New(malloc.NewAllocator[index](h), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 0, v.Cap())
	assert.Equal(t, 0, h.InUse())

	for i := 0; i < 100; i++ {
		require.NoError(t, v.Append(index{uint32(i), uint32(i + 1), uint32(i + 2)}))
	}
	assert.Equal(t, 100, v.Len())
	assert.Equal(t, 128, v.Cap())
	// old buffers are returned on growth
	assert.Equal(t, 128*int(unsafe.Sizeof(index{})), h.InUse())

	for i := 0; i < 100; i++ {
		x, err := v.At(i)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), x.a)
	}
	require.NoError(t, v.Set(3, index{7, 7, 7}))
	x, _ := v.At(3)
	assert.Equal(t, index{7, 7, 7}, x)
	assert.Equal(t, index{7, 7, 7}, v.Slice()[3])

	_, err = v.At(100)
	assert.Error(t, err)
	_, err = v.At(-1)
	assert.Error(t, err)
	assert.Error(t, v.Set(100, index{}))

	v.Truncate(10)
	assert.Equal(t, 10, v.Len())
	assert.Equal(t, 128, v.Cap())

	v.Release()
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 0, h.InUse())
	assert.Equal(t, []malloc.Region{{Offset: 0, Size: 64 * 1024}}, h.Regions())

	// usable after Release
	require.NoError(t, v.Append(index{}, index{}))
	assert.Equal(t, 2, v.Len())
	v.Release()
}

func TestVectorCapacity(t *testing.T) {
	h := newTestHeap(t, 4096)
	v, err := New(malloc.NewAllocator[uint64](h), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
	assert.Equal(t, 10, v.Cap())
	assert.Equal(t, 80, h.InUse())

	require.NoError(t, v.Append(1, 2, 3, 4, 5, 6, 7, 8, 9, 10))
	assert.Equal(t, 10, v.Cap())

	require.NoError(t, v.Append(11))
	assert.Equal(t, 20, v.Cap())
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, v.Slice())
	v.Release()
}

func TestVectorExhaustion(t *testing.T) {
	h := newTestHeap(t, 64)
	v, err := New(malloc.NewAllocator[uint64](h), 4)
	require.NoError(t, err)
	require.NoError(t, v.Append(1, 2, 3, 4))

	// growing to 8 needs 64 more bytes while 32 are held
	err = v.Append(5)
	assert.ErrorIs(t, err, malloc.ErrOutOfMemory)
	assert.Equal(t, []uint64{1, 2, 3, 4}, v.Slice())

	_, err = New(malloc.NewAllocator[uint64](h), 100)
	assert.ErrorIs(t, err, malloc.ErrOutOfMemory)

	// doubling past math.MaxInt/2 must not wrap
	err = v.grow(math.MaxInt/2 + 2)
	assert.ErrorIs(t, err, malloc.ErrOutOfMemory)
	assert.Equal(t, []uint64{1, 2, 3, 4}, v.Slice())
	assert.Equal(t, 32, h.InUse())
}

func TestVectorPointerType(t *testing.T) {
	h := newTestHeap(t, 64)
	_, err := New(malloc.NewAllocator[*int](h), 0)
	assert.ErrorIs(t, err, malloc.ErrPointerType)
}

func newTestHeap(t *testing.T, capacity int) *malloc.Heap {
	t.Helper()
	h := malloc.NewHeap()
	require.NoError(t, h.Init(capacity))
	return h
}
