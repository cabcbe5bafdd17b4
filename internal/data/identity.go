package data

import "reflect"

// State is a store's state tree. It is replaced, never mutated, by the
// store's reducer.
type State = any

// Identical reports whether a and b are the same value by reference.
// Maps, pointers, channels and funcs compare by address; slices compare by
// backing array and length; other comparable values compare with ==.
// Two distinct maps with equal contents are not identical.
func Identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	return identicalValues(va, vb)
}

func identicalValues(va, vb reflect.Value) bool {
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		// Funcs are only identical when both are nil.
		return va.IsNil() && vb.IsNil()
	case reflect.Slice:
		return va.Len() == vb.Len() && (va.Len() == 0 || va.Pointer() == vb.Pointer())
	default:
		if va.Type().Comparable() {
			return va.Equal(vb)
		}
		return false
	}
}

// argsIdentical compares selector argument lists element-wise by identity.
func argsIdentical(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Identical(a[i], b[i]) {
			return false
		}
	}
	return true
}
