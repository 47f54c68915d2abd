// Package bump implements a bump allocator over a fixed region.
//
// Allocation advances an offset. Freeing the most recent block rewinds the
// offset to that block; freeing any other block only lowers the live count.
// When the live count reaches zero the whole region is reset in O(1), so
// workloads that drain completely reuse the region from the start.
package bump

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
)

// ErrEmptyRegion is returned for a zero-length region.
var ErrEmptyRegion = errors.New("bump: empty region")

// Allocator is a bump allocator. Not goroutine-safe.
type Allocator struct {
	buf    []byte  // backing memory
	base   uintptr // address of buf[0]
	offset uintptr // allocation offset within buf
	live   int
	inUse  uintptr
}

var _ heap.Backend = (*Allocator)(nil)
var _ heap.Inspector = (*Allocator)(nil)

// New creates an allocator over buf.
func New(buf []byte) (*Allocator, error) {
	if len(buf) == 0 {
		return nil, ErrEmptyRegion
	}
	return &Allocator{
		buf:  buf,
		base: uintptr(unsafe.Pointer(unsafe.SliceData(buf))),
	}, nil
}

// NewArena creates an allocator over the whole arena.
func NewArena(a *heap.Arena) (heap.Backend, error) {
	return New(a.Bytes())
}

// Allocate bumps the offset past an aligned block of l.Size bytes.
func (a *Allocator) Allocate(l heap.Layout) (heap.Handle, error) {
	size := uintptr(l.Size)
	if size > uintptr(len(a.buf)) {
		return 0, heap.ErrExhausted
	}
	off := heap.AlignUp(a.base+a.offset, uintptr(l.Align)) - a.base
	if off+size > uintptr(len(a.buf)) {
		return 0, heap.ErrExhausted
	}
	a.offset = off + size
	a.live++
	a.inUse += size
	return heap.Handle(a.base + off), nil
}

// Deallocate rewinds when h is the most recent block and resets when the
// allocator drains.
func (a *Allocator) Deallocate(h heap.Handle, l heap.Layout) {
	addr := h.Addr()
	if a.live == 0 || addr < a.base || addr-a.base+uintptr(l.Size) > a.offset {
		panic(heap.Violation("bump: deallocate %s: handle %s is not live", l, h))
	}
	off := addr - a.base
	a.live--
	a.inUse -= uintptr(l.Size)
	if a.live == 0 {
		a.Reset()
		return
	}
	if off+uintptr(l.Size) == a.offset {
		a.offset = off
	}
}

// Reset rewinds the allocator to empty. Outstanding handles become invalid.
func (a *Allocator) Reset() {
	a.offset = 0
	a.live = 0
	a.inUse = 0
}

// SizeInUse returns the bytes consumed so far, including alignment padding
// and blocks freed out of order.
func (a *Allocator) SizeInUse() int {
	return int(a.offset)
}

// Capacity returns the region size.
func (a *Allocator) Capacity() int {
	return len(a.buf)
}

// Utilization returns the ratio of consumed bytes to capacity (0.0 to 1.0).
func (a *Allocator) Utilization() float64 {
	return float64(a.SizeInUse()) / float64(a.Capacity())
}

// Metrics returns a snapshot of allocator statistics. The only free region
// is the tail past the offset.
func (a *Allocator) Metrics() heap.Metrics {
	free := len(a.buf) - int(a.offset)
	m := heap.Metrics{
		InUse:       int(a.inUse),
		Capacity:    len(a.buf),
		Free:        free,
		LargestFree: free,
	}
	if free > 0 {
		m.FreeBlocks = 1
	}
	return m
}
