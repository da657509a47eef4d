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

	"github.com/rendercore/memkit/unsafex/malloc"
)

func Example() {
	type transform struct {
		pos   [3]float32
		scale float32
	}

	h := malloc.NewHeap()
	if err := h.Init(1 << 20); err != nil {
		panic(err)
	}
	p, err := NewPool[transform](h, WithSlotsPerArena[transform](4))
	if err != nil {
		panic(err)
	}

	var hh []*Handle[transform]
	for i := 0; i < 5; i++ {
		x, err := p.Alloc(func(t *transform) { t.scale = float32(i) })
		if err != nil {
			panic(err)
		}
		hh = append(hh, x)
	}
	fmt.Println(p.Arenas(), p.Live(), hh[4].Get().scale)

	for _, x := range hh {
		x.Release()
	}
	fmt.Println(p.Arenas(), p.Live())

	p.Close()
	fmt.Println(h.InUse())

	// Output:
	// 2 5 4
	// 2 0
	// 0
}
