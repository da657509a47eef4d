package malloc

import (
	"errors"
	"fmt"
	"sort"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
	"go.uber.org/zap"
)

var (
	// ErrNotInitialized is returned when allocating from a heap before Init.
	ErrNotInitialized = errors.New("malloc: heap not initialized")

	// ErrOutOfMemory is returned when no free region can hold the request.
	ErrOutOfMemory = errors.New("malloc: out of memory")

	// ErrInvalidSize is returned for non-positive sizes and capacities.
	ErrInvalidSize = errors.New("malloc: invalid size")

	// ErrInvalidAlignment is returned when the alignment is not a positive power of two.
	ErrInvalidAlignment = errors.New("malloc: invalid alignment")
)

// Region is a free range of the backing buffer, relative to its start.
type Region struct {
	Offset int
	Size   int
}

// End returns the offset right after the region.
func (r Region) End() int {
	return r.Offset + r.Size
}

// Option configures a Heap.
type Option func(h *Heap)

// WithLogger sets the logger used by the heap. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(h *Heap) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetrics makes the heap report to m.
func WithMetrics(m *Metrics) Option {
	return func(h *Heap) {
		h.metrics = m
	}
}

// Heap is a first-fit free-list allocator over one fixed-size arena.
//
// The arena is allocated once by Init and kept for the lifetime of the Heap;
// it's never resized and never handed back, it goes away with the Heap itself.
//
// Heap is NOT goroutine safe. All methods must be called from the goroutine
// owning the heap, or be guarded by the caller.
type Heap struct {
	// arena is the backing buffer, nil until Init.
	arena []byte

	// arenaStart is a cached pointer to the start of the arena.
	arenaStart unsafe.Pointer

	// free holds free regions sorted by offset.
	// Adjacent entries are never byte-contiguous: Free always merges them.
	free []Region

	// inuse is the sum of sizes currently handed out by Alloc.
	inuse int

	logger  *zap.Logger
	metrics *Metrics
}

// NewHeap returns an uninitialized heap. Call Init before allocating.
func NewHeap(opts ...Option) *Heap {
	h := &Heap{logger: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Init allocates the backing buffer of the given capacity.
// Calling Init on an initialized heap is a no-op.
func (h *Heap) Init(capacity int) error {
	if h.arena != nil {
		return nil
	}
	if capacity <= 0 {
		return fmt.Errorf("capacity must be > 0, got %d: %w", capacity, ErrInvalidSize)
	}
	h.arena = dirtmake.Bytes(capacity, capacity)
	h.arenaStart = unsafe.Pointer(&h.arena[0])
	h.free = append(h.free[:0], Region{Offset: 0, Size: capacity})
	h.inuse = 0
	h.metrics.setCapacity(capacity)
	h.metrics.setInUse(0, 1)
	h.logger.Info("malloc: heap initialized", zap.Int("capacity", capacity))
	return nil
}

// Initialized reports whether Init has been called.
func (h *Heap) Initialized() bool {
	return h.arena != nil
}

// Alloc returns a pointer to size bytes whose address is a multiple of align.
//
// The first free region (in address order) able to hold an aligned block is split
// into an optional leading padding region, the returned block, and an optional
// trailing leftover region.
//
// The returned memory is not zeroed.
func (h *Heap) Alloc(size, align int) (unsafe.Pointer, error) {
	off, err := h.alloc(size, align)
	if err != nil {
		return nil, err
	}
	return unsafe.Add(h.arenaStart, off), nil
}

// AllocBytes is like Alloc but returns the block as a slice with len == cap == size.
// Use FreeBytes to return it.
func (h *Heap) AllocBytes(size, align int) ([]byte, error) {
	off, err := h.alloc(size, align)
	if err != nil {
		return nil, err
	}
	return h.arena[off : off+size : off+size], nil
}

func (h *Heap) alloc(size, align int) (int, error) {
	if h.arena == nil {
		h.metrics.incFailure()
		return 0, ErrNotInitialized
	}
	if size <= 0 {
		h.metrics.incFailure()
		return 0, fmt.Errorf("size must be > 0, got %d: %w", size, ErrInvalidSize)
	}
	if align <= 0 || align&(align-1) != 0 {
		h.metrics.incFailure()
		return 0, fmt.Errorf("alignment must be a power of two, got %d: %w", align, ErrInvalidAlignment)
	}

	base := uintptr(h.arenaStart)
	mask := uintptr(align - 1)
	for i, r := range h.free {
		start := int((base+uintptr(r.Offset)+mask)&^mask - base)
		pad := start - r.Offset
		if pad+size > r.Size {
			continue
		}
		tail := r.Size - pad - size

		// replace r with whatever survives the split
		switch {
		case pad > 0 && tail > 0:
			h.free[i].Size = pad
			h.insertAt(i+1, Region{Offset: start + size, Size: tail})
		case pad > 0:
			h.free[i].Size = pad
		case tail > 0:
			h.free[i] = Region{Offset: start + size, Size: tail}
		default:
			h.removeAt(i)
		}
		h.inuse += size
		h.metrics.observeAlloc(size)
		h.metrics.setInUse(h.inuse, len(h.free))
		return start, nil
	}

	h.metrics.incFailure()
	h.logger.Debug("malloc: out of memory",
		zap.Int("size", size),
		zap.Int("align", align),
		zap.Int("available", h.Available()),
		zap.Int("regions", len(h.free)),
	)
	return 0, ErrOutOfMemory
}

// Free returns size bytes at p to the heap.
//
// size MUST be the size passed to Alloc for p. The freed region is merged with
// the previous and the next free region when they are byte-contiguous.
// Panics if p is not inside the arena or the region overlaps a free region.
func (h *Heap) Free(p unsafe.Pointer, size int) {
	if size <= 0 {
		return
	}
	off := h.Offset(p)
	if off < 0 || off+size > len(h.arena) {
		panic("malloc: block not in arena")
	}
	h.free1(off, size)
}

// FreeBytes returns a block obtained from AllocBytes.
// The block's cap is used as its size, so reslice with care. Nil or empty is a no-op.
func (h *Heap) FreeBytes(b []byte) {
	if cap(b) == 0 {
		return
	}
	h.Free(unsafe.Pointer(unsafe.SliceData(b)), cap(b))
}

func (h *Heap) free1(off, size int) {
	end := off + size

	// i is the first free region located after the freed one
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].Offset >= off })

	if i < len(h.free) && h.free[i].Offset < end {
		panic("malloc: double free or invalid block")
	}
	if i > 0 && h.free[i-1].End() > off {
		panic("malloc: double free or invalid block")
	}

	mergePrev := i > 0 && h.free[i-1].End() == off
	mergeNext := i < len(h.free) && h.free[i].Offset == end
	switch {
	case mergePrev && mergeNext:
		h.free[i-1].Size += size + h.free[i].Size
		h.removeAt(i)
	case mergePrev:
		h.free[i-1].Size += size
	case mergeNext:
		h.free[i].Offset = off
		h.free[i].Size += size
	default:
		h.insertAt(i, Region{Offset: off, Size: size})
	}

	h.inuse -= size
	h.metrics.observeFree(size)
	h.metrics.setInUse(h.inuse, len(h.free))
}

// Offset returns the offset of p from the start of the arena,
// or -1 if p is outside the arena.
func (h *Heap) Offset(p unsafe.Pointer) int {
	if h.arena == nil {
		return -1
	}
	d := uintptr(p) - uintptr(h.arenaStart)
	if uintptr(p) < uintptr(h.arenaStart) || d >= uintptr(len(h.arena)) {
		return -1
	}
	return int(d)
}

// Cap returns the capacity of the arena, 0 before Init.
func (h *Heap) Cap() int {
	return len(h.arena)
}

// InUse returns the number of bytes currently allocated.
func (h *Heap) InUse() int {
	return h.inuse
}

// Available returns the total free bytes, regardless of fragmentation.
func (h *Heap) Available() int {
	total := 0
	for _, r := range h.free {
		total += r.Size
	}
	return total
}

// Regions returns a copy of the free list in address order.
func (h *Heap) Regions() []Region {
	return append([]Region(nil), h.free...)
}

// Reset drops all allocations and returns the heap to its freshly initialized state.
// Existing pointers become invalid after this operation.
func (h *Heap) Reset() {
	if h.arena == nil {
		return
	}
	h.free = append(h.free[:0], Region{Offset: 0, Size: len(h.arena)})
	h.inuse = 0
	h.metrics.setInUse(0, 1)
}

func (h *Heap) insertAt(i int, r Region) {
	h.free = append(h.free, Region{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = r
}

func (h *Heap) removeAt(i int) {
	copy(h.free[i:], h.free[i+1:])
	h.free = h.free[:len(h.free)-1]
}
