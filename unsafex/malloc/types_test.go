package malloc

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestPointerFree(t *testing.T) {
	type flat struct {
		a int32
		b [4]float64
		c struct{ d uint8 }
	}
	type withString struct {
		a int
		s string
	}
	type nested struct {
		f  flat
		ws [2]withString
	}
	tests := []struct {
		name string
		v    any
		want bool
	}{
		{"int", 0, true},
		{"float", 0.0, true},
		{"complex", complex64(0), true},
		{"array", [8]uint16{}, true},
		{"flat_struct", flat{}, true},
		{"empty_struct", struct{}{}, true},
		{"empty_array_of_ptr", [0]*int{}, true},
		{"pointer", new(int), false},
		{"unsafe_pointer", unsafe.Pointer(nil), false},
		{"string", "", false},
		{"slice", []int{}, false},
		{"map", map[int]int{}, false},
		{"chan", make(chan int), false},
		{"func", func() {}, false},
		{"struct_with_string", withString{}, false},
		{"nested", nested{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PointerFree(reflect.TypeOf(tt.v)))
		})
	}
}

func TestCheckType(t *testing.T) {
	assert.NoError(t, CheckType[[16]byte]())
	assert.ErrorIs(t, CheckType[any](), ErrPointerType)
	assert.ErrorIs(t, CheckType[[]byte](), ErrPointerType)
}
