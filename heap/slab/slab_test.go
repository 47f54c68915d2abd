package slab_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/allocbench/heap"
	"github.com/pavanmanishd/allocbench/heap/heaptest"
	"github.com/pavanmanishd/allocbench/heap/slab"
)

func TestConformance(t *testing.T) {
	// Only the linked-list eighth of the region can hold one large block.
	heaptest.Run(t, slab.NewArena, heaptest.Options{
		ArenaSize: 1 << 20,
		MaxBlock:  (1 << 20) / 8,
	})
}

func newHeap(t *testing.T, size int) (*heap.Arena, *slab.Heap) {
	t.Helper()
	a, err := heap.NewArena(size, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { a.Release() })
	h, err := slab.New(a.Bytes())
	require.NoError(t, err)
	return a, h
}

func TestNewInvalidRegion(t *testing.T) {
	a, err := heap.NewArena(2*slab.MinHeapSize, 4096)
	require.NoError(t, err)
	defer a.Release()

	for _, mem := range [][]byte{
		nil,
		a.Bytes()[:slab.MinHeapSize-4096],
		a.Bytes()[:slab.MinHeapSize+4096],
		a.Bytes()[8 : 8+slab.MinHeapSize],
	} {
		_, err := slab.New(mem)
		assert.True(t, errors.Is(err, slab.ErrInvalidRegion), "len %d: %v", len(mem), err)
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		size, align, class int
	}{
		{1, 8, 0},
		{16, 8, 0},
		{64, 64, 0},
		{65, 16, 1},
		{32, 128, 1},
		{4096, 16, 6},
		{16, 4096, 6},
		{4097, 16, -1},
		{64, 8192, -1},
		{8192, 16, -1},
	}
	for _, tt := range tests {
		l := heap.Layout{Size: tt.size, Align: tt.align}
		assert.Equal(t, tt.class, slab.ClassOf(l), "ClassOf(%s)", l)
	}
}

func TestClassBlocksAreNaturallyAligned(t *testing.T) {
	_, h := newHeap(t, slab.MinHeapSize*4)
	for i, size := range slab.ClassSizes {
		l := heap.MustLayout(size, 16)
		p, err := h.Allocate(l)
		require.NoError(t, err)
		assert.True(t, p.Aligned(size), "class %d handle %s", i, p)
		h.Deallocate(p, l)
	}
}

func TestFreedBlockIsReusedFirst(t *testing.T) {
	_, h := newHeap(t, slab.MinHeapSize)
	l := heap.MustLayout(2*heap.PointerSize, heap.PointerSize)

	p1, err := h.Allocate(l)
	require.NoError(t, err)
	p2, err := h.Allocate(l)
	require.NoError(t, err)
	assert.Equal(t, p1+64, p2, "blocks come out in address order")

	h.Deallocate(p1, l)
	p3, err := h.Allocate(l)
	require.NoError(t, err)
	assert.Equal(t, p1, p3)

	h.Deallocate(p2, l)
	h.Deallocate(p3, l)
	assert.Zero(t, h.Metrics().InUse)
}

func TestClassExhaustion(t *testing.T) {
	_, h := newHeap(t, slab.MinHeapSize)
	// Each sub-heap is one 4 KiB page: a single 4096 byte block.
	l := heap.MustLayout(4096, 16)
	p, err := h.Allocate(l)
	require.NoError(t, err)

	_, err = h.Allocate(l)
	assert.True(t, errors.Is(err, heap.ErrExhausted))

	// Other classes are unaffected.
	small := heap.MustLayout(64, 16)
	q, err := h.Allocate(small)
	require.NoError(t, err)

	h.Deallocate(p, l)
	h.Deallocate(q, small)
	_, err = h.Allocate(l)
	require.NoError(t, err)
}

func TestLargeRequestsUseLinkedList(t *testing.T) {
	a, h := newHeap(t, slab.MinHeapSize*32)
	sub := a.Size() / 8
	large := heap.MustLayout(8192, 16)
	p, err := h.Allocate(large)
	require.NoError(t, err)
	assert.Equal(t, a.Base()+uintptr(7*sub), p.Addr(), "first large block starts the last sub-heap")

	_, err = h.Allocate(heap.MustLayout(sub+1, 16))
	assert.True(t, errors.Is(err, heap.ErrExhausted))
	h.Deallocate(p, large)
}

func TestMetrics(t *testing.T) {
	_, h := newHeap(t, slab.MinHeapSize*8)
	m := h.Metrics()
	assert.Equal(t, slab.MinHeapSize*8, m.Capacity)
	assert.Equal(t, m.Capacity, m.Free)
	assert.Zero(t, m.InUse)

	l := heap.MustLayout(100, 16)
	p, err := h.Allocate(l)
	require.NoError(t, err)
	m = h.Metrics()
	assert.Equal(t, 128, m.InUse, "a 100 byte request occupies a 128 byte block")
	assert.Equal(t, m.Capacity-128, m.Free)
	h.Deallocate(p, l)
}

func TestDeallocateWrongClass(t *testing.T) {
	_, h := newHeap(t, slab.MinHeapSize)
	l := heap.MustLayout(64, 16)
	p, err := h.Allocate(l)
	require.NoError(t, err)
	assert.Panics(t, func() { h.Deallocate(p, heap.MustLayout(128, 16)) })
	assert.Panics(t, func() { h.Deallocate(p+8, l) })
	h.Deallocate(p, l)
	assert.Panics(t, func() { h.Deallocate(p, l) }, "class is empty")
}
