// Package bestfit implements a best-fit allocator whose free spans live in
// two B-trees outside the managed region: one ordered by (size, offset) to
// find the smallest span that fits, one ordered by offset to merge freed
// blocks with their neighbours.
package bestfit

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/btree"

	"github.com/pavanmanishd/allocbench/heap"
)

// Granule is the allocation granularity; block sizes are rounded up to it.
const Granule = 8

// ErrEmptyRegion is returned for a region with no usable bytes.
var ErrEmptyRegion = errors.New("bestfit: empty region")

type span struct {
	off  uintptr
	size uintptr
}

func bySize(a, b span) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.off < b.off
}

func byOffset(a, b span) bool {
	return a.off < b.off
}

// Heap is a best-fit allocator. Not goroutine-safe.
type Heap struct {
	base     uintptr
	capacity uintptr
	sizes    *btree.BTreeG[span]
	offsets  *btree.BTreeG[span]
	inUse    uintptr
}

var _ heap.Backend = (*Heap)(nil)
var _ heap.Inspector = (*Heap)(nil)

// New builds a heap managing mem.
func New(mem []byte) (*Heap, error) {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	start := heap.AlignUp(base, Granule)
	end := heap.AlignDown(base+uintptr(len(mem)), Granule)
	if len(mem) == 0 || end <= start {
		return nil, errors.Wrapf(ErrEmptyRegion, "%d bytes", len(mem))
	}
	opts := btree.Options{NoLocks: true}
	h := &Heap{
		base:     start,
		capacity: end - start,
		sizes:    btree.NewBTreeGOptions(bySize, opts),
		offsets:  btree.NewBTreeGOptions(byOffset, opts),
	}
	h.insert(span{off: 0, size: h.capacity})
	return h, nil
}

// NewArena builds a heap over the whole arena.
func NewArena(a *heap.Arena) (heap.Backend, error) {
	return New(a.Bytes())
}

// Allocate reserves the smallest free span that holds l once aligned.
func (h *Heap) Allocate(l heap.Layout) (heap.Handle, error) {
	if uintptr(l.Size) > h.capacity {
		return 0, heap.ErrExhausted
	}
	size := heap.AlignUp(uintptr(l.Size), Granule)
	align := max(uintptr(l.Align), Granule)

	var (
		found span
		start uintptr
		ok    bool
	)
	h.sizes.Ascend(span{size: size}, func(s span) bool {
		start = heap.AlignUp(h.base+s.off, align) - h.base
		if start+size <= s.off+s.size {
			found, ok = s, true
			return false
		}
		return true
	})
	if !ok {
		return 0, heap.ErrExhausted
	}

	h.remove(found)
	if front := start - found.off; front > 0 {
		h.insert(span{off: found.off, size: front})
	}
	if back := found.off + found.size - (start + size); back > 0 {
		h.insert(span{off: start + size, size: back})
	}
	h.inUse += size
	return heap.Handle(h.base + start), nil
}

// Deallocate frees the block and merges it with adjacent free spans.
func (h *Heap) Deallocate(addr heap.Handle, l heap.Layout) {
	size := heap.AlignUp(uintptr(l.Size), Granule)
	a := addr.Addr()
	if a < h.base || a-h.base+size > h.capacity {
		panic(heap.Violation("bestfit: deallocate %s: handle %s outside heap", l, addr))
	}
	freed := span{off: a - h.base, size: size}

	var prev, next span
	var hasPrev, hasNext bool
	h.offsets.Descend(freed, func(s span) bool {
		prev, hasPrev = s, true
		return false
	})
	h.offsets.Ascend(freed, func(s span) bool {
		next, hasNext = s, true
		return false
	})
	if hasPrev && prev.off+prev.size > freed.off {
		panic(heap.Violation("bestfit: deallocate %s: block %s is already free", l, addr))
	}
	if hasNext && freed.off+freed.size > next.off {
		panic(heap.Violation("bestfit: deallocate %s: block %s overlaps a free span", l, addr))
	}

	if hasNext && freed.off+freed.size == next.off {
		h.remove(next)
		freed.size += next.size
	}
	if hasPrev && prev.off+prev.size == freed.off {
		h.remove(prev)
		freed = span{off: prev.off, size: prev.size + freed.size}
	}
	h.insert(freed)
	h.inUse -= size
}

// Metrics reports occupancy from the span indexes.
func (h *Heap) Metrics() heap.Metrics {
	m := heap.Metrics{
		InUse:      int(h.inUse),
		Capacity:   int(h.capacity),
		FreeBlocks: h.offsets.Len(),
	}
	h.offsets.Scan(func(s span) bool {
		m.Free += int(s.size)
		return true
	})
	if largest, ok := h.sizes.Max(); ok {
		m.LargestFree = int(largest.size)
	}
	return m
}

func (h *Heap) insert(s span) {
	h.sizes.Set(s)
	h.offsets.Set(s)
}

func (h *Heap) remove(s span) {
	h.sizes.Delete(s)
	h.offsets.Delete(s)
}
