package heap

import (
	"unsafe"

	"github.com/cockroachdb/errors"
)

// LayoutOf returns the layout of n consecutive values of type T.
// Zero-sized types still occupy one byte so that every block is distinct.
func LayoutOf[T any](n int) Layout {
	var zero T
	size := int(unsafe.Sizeof(zero)) * n
	align := max(int(unsafe.Alignof(zero)), PointerSize)
	return Layout{Size: max(size, 1), Align: align}
}

// Alloc reserves a zeroed T from b, which must be built over a, and returns
// a pointer into the arena along with the handle needed to free it.
// T must not contain Go pointers: the garbage collector does not scan arenas.
func Alloc[T any](b Backend, a *Arena) (*T, Handle, error) {
	l := LayoutOf[T](1)
	h, err := b.Allocate(l)
	if err != nil {
		return nil, 0, err
	}
	buf := a.Slice(h, l.Size)
	clear(buf)
	return (*T)(unsafe.Pointer(unsafe.SliceData(buf))), h, nil
}

// AllocSlice reserves n zeroed elements of type T.
func AllocSlice[T any](b Backend, a *Arena, n int) ([]T, Handle, error) {
	if n <= 0 {
		return nil, 0, errors.Wrapf(ErrInvalidLayout, "slice length %d", n)
	}
	l := LayoutOf[T](n)
	h, err := b.Allocate(l)
	if err != nil {
		return nil, 0, err
	}
	buf := a.Slice(h, l.Size)
	clear(buf)
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(buf))), n), h, nil
}

// Free releases n elements of type T previously obtained from Alloc (n=1)
// or AllocSlice.
func Free[T any](b Backend, h Handle, n int) {
	b.Deallocate(h, LayoutOf[T](n))
}
