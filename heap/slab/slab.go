// Package slab implements a size-class allocator over a fixed region.
//
// The region is split into eight equal sub-heaps. Seven serve fixed block
// sizes from 64 to 4096 bytes, each keeping an intrusive LIFO stack of free
// blocks; the eighth is a first-fit linked-list heap for anything larger or
// more strictly aligned than 4096 bytes. A full size class fails the request
// rather than borrowing from its neighbours.
package slab

import (
	"unsafe"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
	"github.com/pavanmanishd/allocbench/heap/linkedlist"
)

// ClassSizes are the block sizes served from slabs.
var ClassSizes = [...]int{64, 128, 256, 512, 1024, 2048, 4096}

const (
	numSubHeaps = len(ClassSizes) + 1
	// MinSlabSize is the smallest sub-heap; it also fixes the region alignment.
	MinSlabSize = 4096
	// MinHeapSize is the smallest region New accepts. Regions must be a
	// multiple of it.
	MinHeapSize = numSubHeaps * MinSlabSize

	nilBlock = ^uintptr(0)
)

// ErrInvalidRegion is returned for regions of the wrong size or alignment.
var ErrInvalidRegion = errors.New("slab: invalid region")

// Heap is a slab allocator. Not goroutine-safe.
type Heap struct {
	slabs [len(ClassSizes)]slab
	large *linkedlist.Heap
}

var _ heap.Backend = (*Heap)(nil)
var _ heap.Inspector = (*Heap)(nil)

type slab struct {
	mem       []byte
	base      uintptr
	blockSize uintptr
	free      uintptr // offset of the first free block
	blocks    int
	used      int
}

// New builds a slab heap over mem, which must be a multiple of MinHeapSize
// bytes and start on a MinSlabSize boundary.
func New(mem []byte) (*Heap, error) {
	if len(mem) < MinHeapSize || len(mem)%MinHeapSize != 0 {
		return nil, errors.Wrapf(ErrInvalidRegion, "size %d is not a multiple of %d", len(mem), MinHeapSize)
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	if base%MinSlabSize != 0 {
		return nil, errors.Wrapf(ErrInvalidRegion, "base %#x is not aligned to %d", base, MinSlabSize)
	}

	h := &Heap{}
	sub := len(mem) / numSubHeaps
	for i, size := range ClassSizes {
		h.slabs[i].init(mem[i*sub:(i+1)*sub], size)
	}
	large, err := linkedlist.New(mem[len(ClassSizes)*sub:])
	if err != nil {
		return nil, err
	}
	h.large = large
	return h, nil
}

// NewArena builds a slab heap over the whole arena.
func NewArena(a *heap.Arena) (heap.Backend, error) {
	return New(a.Bytes())
}

// ClassOf returns the index into ClassSizes serving l, or -1 when l goes to
// the linked-list sub-heap.
func ClassOf(l heap.Layout) int {
	if l.Size > ClassSizes[len(ClassSizes)-1] {
		return -1
	}
	for i, size := range ClassSizes {
		if l.Size <= size && l.Align <= size {
			return i
		}
	}
	return -1
}

// Allocate pops a block from the size class serving l.
func (h *Heap) Allocate(l heap.Layout) (heap.Handle, error) {
	class := ClassOf(l)
	if class < 0 {
		return h.large.Allocate(l)
	}
	addr, ok := h.slabs[class].allocate()
	if !ok {
		return 0, heap.ErrExhausted
	}
	return heap.Handle(addr), nil
}

// Deallocate pushes the block back onto its size class.
func (h *Heap) Deallocate(addr heap.Handle, l heap.Layout) {
	class := ClassOf(l)
	if class < 0 {
		h.large.Deallocate(addr, l)
		return
	}
	s := &h.slabs[class]
	if !s.owns(addr.Addr()) {
		panic(heap.Violation("slab: deallocate %s: handle %s is not in the %d byte class", l, addr, s.blockSize))
	}
	s.deallocate(addr.Addr())
}

// Metrics sums the slabs and the linked-list sub-heap.
func (h *Heap) Metrics() heap.Metrics {
	m := h.large.Metrics()
	for i := range h.slabs {
		m = m.Add(h.slabs[i].metrics())
	}
	return m
}

func (s *slab) init(mem []byte, blockSize int) {
	s.mem = mem
	s.base = uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
	s.blockSize = uintptr(blockSize)
	s.blocks = len(mem) / blockSize
	s.free = nilBlock
	for i := s.blocks - 1; i >= 0; i-- {
		off := uintptr(i) * s.blockSize
		*s.next(off) = s.free
		s.free = off
	}
}

func (s *slab) allocate() (uintptr, bool) {
	if s.free == nilBlock {
		return 0, false
	}
	off := s.free
	s.free = *s.next(off)
	s.used++
	return s.base + off, true
}

func (s *slab) deallocate(addr uintptr) {
	off := addr - s.base
	if off%s.blockSize != 0 {
		panic(heap.Violation("slab: handle %#x is not a block boundary", addr))
	}
	if s.used == 0 {
		panic(heap.Violation("slab: handle %#x freed from an empty class", addr))
	}
	*s.next(off) = s.free
	s.free = off
	s.used--
}

func (s *slab) owns(addr uintptr) bool {
	return addr >= s.base && addr < s.base+uintptr(s.blocks)*s.blockSize
}

func (s *slab) metrics() heap.Metrics {
	bs := int(s.blockSize)
	m := heap.Metrics{
		InUse:      s.used * bs,
		Capacity:   s.blocks * bs,
		Free:       (s.blocks - s.used) * bs,
		FreeBlocks: s.blocks - s.used,
	}
	if m.FreeBlocks > 0 {
		m.LargestFree = bs
	}
	return m
}

func (s *slab) next(off uintptr) *uintptr {
	return (*uintptr)(unsafe.Pointer(&s.mem[off]))
}
