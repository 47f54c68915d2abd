package benchmarks_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/allocbench"
	"github.com/pavanmanishd/allocbench/heap"
)

const benchArenaSize = heap.DefaultArenaSize

// newBackend builds f over a fresh default-size arena released at the end
// of the benchmark.
func newBackend(b *testing.B, f allocbench.BackendFactory) (*heap.Arena, heap.Backend) {
	b.Helper()
	a, err := heap.NewArena(benchArenaSize, heap.DefaultArenaAlign)
	require.NoError(b, err)
	b.Cleanup(func() { a.Release() })
	be, err := f.New(a)
	require.NoError(b, err)
	return a, be
}

func backends(b *testing.B) []allocbench.BackendFactory {
	b.Helper()
	fs, err := allocbench.Backends()
	require.NoError(b, err)
	return fs
}

func mustAllocate(b *testing.B, be heap.Backend, l heap.Layout) heap.Handle {
	h, err := be.Allocate(l)
	if err != nil {
		b.Fatalf("allocate %s: %v", l, err)
	}
	return h
}
