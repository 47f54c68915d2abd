package linkedlist_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/allocbench/heap"
	"github.com/pavanmanishd/allocbench/heap/heaptest"
	"github.com/pavanmanishd/allocbench/heap/linkedlist"
)

func TestConformance(t *testing.T) {
	heaptest.Run(t, linkedlist.NewArena, heaptest.Options{})
}

func newHeap(t *testing.T, size int) (*heap.Arena, *linkedlist.Heap) {
	t.Helper()
	a, err := heap.NewArena(size, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { a.Release() })
	h, err := linkedlist.New(a.Bytes())
	require.NoError(t, err)
	return a, h
}

func TestNew(t *testing.T) {
	_, err := linkedlist.New(nil)
	assert.True(t, errors.Is(err, linkedlist.ErrRegionTooSmall))
	_, err = linkedlist.New(make([]byte, linkedlist.MinBlock-1))
	assert.True(t, errors.Is(err, linkedlist.ErrRegionTooSmall))

	_, h := newHeap(t, 4096)
	assert.Equal(t, 4096, h.Capacity())
	m := h.Metrics()
	assert.Equal(t, heap.Metrics{Capacity: 4096, Free: 4096, FreeBlocks: 1, LargestFree: 4096}, m)
}

func TestFirstFit(t *testing.T) {
	a, h := newHeap(t, 4096)
	base := heap.Handle(a.Base())
	l := heap.MustLayout(64, 16)

	var hs []heap.Handle
	for i := range 4 {
		p, err := h.Allocate(l)
		require.NoError(t, err)
		require.Equal(t, base+heap.Handle(64*i), p, "blocks are carved front to back")
		hs = append(hs, p)
	}

	// Free the second block; the next fitting request reuses it.
	h.Deallocate(hs[1], l)
	assert.Equal(t, 2, h.Metrics().FreeBlocks)
	p, err := h.Allocate(heap.MustLayout(48, 16))
	require.NoError(t, err)
	assert.Equal(t, hs[1], p)
	h.Deallocate(p, heap.MustLayout(48, 16))

	// A request too large for the hole skips it.
	p, err = h.Allocate(heap.MustLayout(128, 16))
	require.NoError(t, err)
	assert.Equal(t, base+256, p)
	h.Deallocate(p, heap.MustLayout(128, 16))

	for _, p := range []heap.Handle{hs[0], hs[2], hs[3]} {
		h.Deallocate(p, l)
	}
	m := h.Metrics()
	assert.Equal(t, 1, m.FreeBlocks, "holes coalesce back into one")
	assert.Equal(t, 4096, m.LargestFree)
	assert.Zero(t, m.InUse)
	assert.Zero(t, h.Live())
}

func TestCoalesceOrder(t *testing.T) {
	orders := map[string][]int{
		"FIFO":   {0, 1, 2, 3, 4},
		"LIFO":   {4, 3, 2, 1, 0},
		"middle": {2, 0, 4, 1, 3},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			_, h := newHeap(t, 8192)
			l := heap.MustLayout(100, 8)
			hs := make([]heap.Handle, 5)
			for i := range hs {
				p, err := h.Allocate(l)
				require.NoError(t, err)
				hs[i] = p
			}
			for _, i := range order {
				h.Deallocate(hs[i], l)
			}
			m := h.Metrics()
			assert.Equal(t, 1, m.FreeBlocks)
			assert.Equal(t, 8192, m.Free)
		})
	}
}

func TestAlignmentPadding(t *testing.T) {
	a, h := newHeap(t, 16384)
	base := heap.Handle(a.Base())

	small := heap.MustLayout(24, 8)
	p1, err := h.Allocate(small)
	require.NoError(t, err)
	require.Equal(t, base, p1)

	// The gap before the aligned block becomes a hole of its own.
	big := heap.MustLayout(1024, 4096)
	p2, err := h.Allocate(big)
	require.NoError(t, err)
	assert.Equal(t, base+4096, p2)
	assert.Equal(t, 2, h.Metrics().FreeBlocks)

	// The front hole serves later small requests.
	p3, err := h.Allocate(small)
	require.NoError(t, err)
	assert.Equal(t, base+24, p3)

	h.Deallocate(p2, big)
	h.Deallocate(p1, small)
	h.Deallocate(p3, small)
	assert.Equal(t, 1, h.Metrics().FreeBlocks)
}

func TestMinimumBlock(t *testing.T) {
	a, h := newHeap(t, 4096)
	base := heap.Handle(a.Base())
	l := heap.MustLayout(1, heap.PointerSize)
	p1, err := h.Allocate(l)
	require.NoError(t, err)
	p2, err := h.Allocate(l)
	require.NoError(t, err)
	assert.Equal(t, base+heap.Handle(linkedlist.MinBlock), p2)
	assert.Equal(t, 2*linkedlist.MinBlock, h.Metrics().InUse)
	h.Deallocate(p1, l)
	h.Deallocate(p2, l)
}

func TestExhaustion(t *testing.T) {
	_, h := newHeap(t, 4096)
	p, err := h.Allocate(heap.MustLayout(4096, 16))
	require.NoError(t, err)

	_, err = h.Allocate(heap.MustLayout(16, 16))
	assert.True(t, errors.Is(err, heap.ErrExhausted))
	assert.Zero(t, h.Metrics().FreeBlocks)

	h.Deallocate(p, heap.MustLayout(4096, 16))
	_, err = h.Allocate(heap.MustLayout(4097, 16))
	assert.True(t, errors.Is(err, heap.ErrExhausted))
}

func TestDeallocateViolations(t *testing.T) {
	a, h := newHeap(t, 4096)
	l := heap.MustLayout(64, 16)
	p, err := h.Allocate(l)
	require.NoError(t, err)

	assert.Panics(t, func() { h.Deallocate(heap.Handle(a.Base()+8192), l) }, "outside heap")
	h.Deallocate(p, l)
	assert.Panics(t, func() { h.Deallocate(p, l) }, "double free")
}
