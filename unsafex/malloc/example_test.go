package malloc

import "fmt"

func Example() {
	h := NewHeap()
	if err := h.Init(1024); err != nil {
		panic(err)
	}

	a, _ := h.Alloc(100, 8)
	b, _ := h.Alloc(100, 8)
	fmt.Println(h.Offset(a), h.Offset(b), h.Regions())

	h.Free(b, 100)
	h.Free(a, 100)
	fmt.Println(h.Regions())

	// Output:
	// 0 104 [{100 4} {204 820}]
	// [{0 1024}]
}

func ExampleAllocator() {
	h := NewHeap()
	_ = h.Init(1024)

	a := NewAllocator[uint32](h)
	ids, err := a.Allocate(16)
	if err != nil {
		panic(err)
	}
	for i := range ids {
		ids[i] = uint32(i * i)
	}
	fmt.Println(len(ids), ids[15], h.InUse())

	a.Deallocate(ids)
	fmt.Println(h.InUse(), a == NewAllocator[uint32](h))

	// Output:
	// 16 225 64
	// 0 true
}
