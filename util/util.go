// Package util contains small generic helpers shared across the kernel.
//
// Grounded on biscuit's own util/util.go. Readn/Writen, biscuit's
// byte-buffer wire-format accessors for on-disk and network structures, are
// not carried over: Zixiao has no filesystem or networking stack for them
// to serve (see DESIGN.md).
package util

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}
