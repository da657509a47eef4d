package malloc

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrPointerType is returned when a type holding Go pointers is placed in the arena.
// The GC never scans the arena, so anything it references could be collected.
var ErrPointerType = errors.New("malloc: type contains pointers")

var pointerFreeCache sync.Map // reflect.Type -> bool

// PointerFree reports whether values of t contain no Go pointers,
// which means they can be stored in arena memory.
func PointerFree(t reflect.Type) bool {
	if v, ok := pointerFreeCache.Load(t); ok {
		return v.(bool)
	}
	ok := pointerFree(t)
	pointerFreeCache.Store(t, ok)
	return ok
}

func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return t.Len() == 0 || pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		// Pointer, UnsafePointer, String, Slice, Map, Chan, Func, Interface
		return false
	}
}

// CheckType returns ErrPointerType if T can't live in arena memory.
func CheckType[T any]() error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if !PointerFree(t) {
		return fmt.Errorf("%v: %w", t, ErrPointerType)
	}
	return nil
}
