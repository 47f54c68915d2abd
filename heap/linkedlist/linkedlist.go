// Package linkedlist implements a first-fit allocator over a fixed region.
//
// Free regions ("holes") form a singly linked list kept in address order.
// Each hole stores its size and the offset of the next hole in its own first
// bytes, so the allocator needs no memory outside the region it manages.
// Allocate takes the first hole that fits, splitting off front and back
// remainders; Deallocate reinserts the block and merges it with adjacent
// holes.
package linkedlist

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
)

const (
	wordSize = unsafe.Sizeof(uintptr(0))
	// MinBlock is the smallest block handed out; a hole header must fit.
	MinBlock = int(unsafe.Sizeof(hole{}))
	minBlock = uintptr(MinBlock)
	nilHole  = ^uintptr(0)
)

// ErrRegionTooSmall is returned when a region cannot hold a single hole.
var ErrRegionTooSmall = errors.New("linkedlist: region too small")

type hole struct {
	size uintptr
	next uintptr // offset of the next hole, nilHole at the tail
}

// Heap is a first-fit allocator. Not goroutine-safe.
type Heap struct {
	mem      []byte
	base     uintptr
	start    uintptr // offset of the first usable byte
	end      uintptr // offset one past the last usable byte
	head     uintptr
	inUse    uintptr
	numAlloc int
}

var _ heap.Backend = (*Heap)(nil)
var _ heap.Inspector = (*Heap)(nil)

// New builds a heap managing mem. The region is trimmed to word boundaries.
func New(mem []byte) (*Heap, error) {
	if len(mem) == 0 {
		return nil, errors.Wrapf(ErrRegionTooSmall, "%d bytes", len(mem))
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	start := heap.AlignUp(base, wordSize) - base
	end := heap.AlignDown(base+uintptr(len(mem)), wordSize) - base
	if end <= start || end-start < minBlock {
		return nil, errors.Wrapf(ErrRegionTooSmall, "%d bytes", len(mem))
	}
	h := &Heap{
		mem:   mem,
		base:  base,
		start: start,
		end:   end,
		head:  start,
	}
	*h.hole(start) = hole{size: end - start, next: nilHole}
	return h, nil
}

// NewArena builds a heap over the whole arena.
func NewArena(a *heap.Arena) (heap.Backend, error) {
	return New(a.Bytes())
}

// Capacity returns the number of bytes the heap manages.
func (h *Heap) Capacity() int {
	return int(h.end - h.start)
}

// Owns reports whether the block at addr lies inside this heap.
func (h *Heap) Owns(addr heap.Handle) bool {
	a := addr.Addr()
	return a >= h.base+h.start && a < h.base+h.end
}

// Allocate reserves the first hole that can hold l.
func (h *Heap) Allocate(l heap.Layout) (heap.Handle, error) {
	if l.Size > h.Capacity() {
		return 0, heap.ErrExhausted
	}
	size, align := blockSize(l), blockAlign(l)
	prev := nilHole
	for cur := h.head; cur != nilHole; {
		hl := h.hole(cur)
		if start, ok := h.fit(cur, hl.size, size, align); ok {
			h.carve(prev, cur, start, size)
			h.inUse += size
			h.numAlloc++
			return heap.Handle(h.base + start), nil
		}
		prev, cur = cur, hl.next
	}
	return 0, heap.ErrExhausted
}

// Deallocate returns the block to the free list, merging neighbours.
func (h *Heap) Deallocate(addr heap.Handle, l heap.Layout) {
	size := blockSize(l)
	if !h.Owns(addr) {
		panic(heap.Violation("linkedlist: deallocate %s: handle %s outside heap", l, addr))
	}
	off := addr.Addr() - h.base
	if off+size > h.end {
		panic(heap.Violation("linkedlist: deallocate %s: block %s runs past the heap", l, addr))
	}

	prev := nilHole
	cur := h.head
	for cur != nilHole && cur < off {
		prev, cur = cur, h.hole(cur).next
	}
	if prev != nilHole && prev+h.hole(prev).size > off {
		panic(heap.Violation("linkedlist: deallocate %s: block %s is already free", l, addr))
	}
	if cur != nilHole && off+size > cur {
		panic(heap.Violation("linkedlist: deallocate %s: block %s overlaps a free hole", l, addr))
	}

	merged := size
	next := cur
	if cur != nilHole && off+size == cur {
		c := h.hole(cur)
		merged += c.size
		next = c.next
	}
	if prev != nilHole && prev+h.hole(prev).size == off {
		p := h.hole(prev)
		p.size += merged
		p.next = next
	} else {
		*h.hole(off) = hole{size: merged, next: next}
		h.link(prev, off)
	}
	h.inUse -= size
	h.numAlloc--
}

// Metrics walks the free list.
func (h *Heap) Metrics() heap.Metrics {
	m := heap.Metrics{
		InUse:    int(h.inUse),
		Capacity: h.Capacity(),
	}
	for cur := h.head; cur != nilHole; cur = h.hole(cur).next {
		size := int(h.hole(cur).size)
		m.Free += size
		m.FreeBlocks++
		m.LargestFree = max(m.LargestFree, size)
	}
	return m
}

// Live returns the number of live blocks.
func (h *Heap) Live() int {
	return h.numAlloc
}

// fit places a block of size bytes aligned to align inside the hole at off.
// Front and back remainders must be empty or large enough to stay holes.
func (h *Heap) fit(off, holeSize, size, align uintptr) (uintptr, bool) {
	start := heap.AlignUp(h.base+off, align) - h.base
	if front := start - off; front != 0 && front < minBlock {
		start = heap.AlignUp(h.base+off+minBlock, align) - h.base
	}
	end := off + holeSize
	if start+size > end {
		return 0, false
	}
	if back := end - (start + size); back != 0 && back < minBlock {
		return 0, false
	}
	return start, true
}

// carve removes [start, start+size) from the hole at cur.
func (h *Heap) carve(prev, cur, start, size uintptr) {
	hl := *h.hole(cur)
	end := cur + hl.size
	next := hl.next
	if back := end - (start + size); back > 0 {
		tail := start + size
		*h.hole(tail) = hole{size: back, next: next}
		next = tail
	}
	if front := start - cur; front > 0 {
		*h.hole(cur) = hole{size: front, next: next}
		return
	}
	h.link(prev, next)
}

func (h *Heap) link(prev, next uintptr) {
	if prev == nilHole {
		h.head = next
		return
	}
	h.hole(prev).next = next
}

func (h *Heap) hole(off uintptr) *hole {
	return (*hole)(unsafe.Pointer(&h.mem[off]))
}

func blockSize(l heap.Layout) uintptr {
	return max(heap.AlignUp(uintptr(l.Size), wordSize), minBlock)
}

func blockAlign(l heap.Layout) uintptr {
	return max(uintptr(l.Align), wordSize)
}
