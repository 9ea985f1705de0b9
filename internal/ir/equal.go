package ir

import "reflect"

// Equal reports whether two container values are the same.
//
// Comparable values are compared with ==, so pointer-typed values keep
// identity semantics. Maps, slices and funcs cannot be compared with == and
// would panic; they fall back to reflect.DeepEqual (funcs are equal only when
// both are nil).
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if reflect.ValueOf(a).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Same reports whether b is indistinguishable from a without inspecting
// contents: comparable values must be ==, and non-comparable values (maps,
// slices) are never the same because they may have been mutated in place.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if !reflect.ValueOf(a).Comparable() || !reflect.ValueOf(b).Comparable() {
		return false
	}
	return a == b
}
