package benchmarks_test

import (
	"testing"

	"github.com/pavanmanishd/allocbench/heap"
)

// BenchmarkWorstCaseScenarios tests patterns that defeat particular backends.
func BenchmarkWorstCaseScenarios(b *testing.B) {

	// Scenario 1: Tiny allocations pay the full minimum block (and, for the
	// slab, a 64 byte class).
	b.Run("TinyAllocations", func(b *testing.B) {
		l := heap.MustLayout(1, heap.PointerSize)
		for _, f := range backends(b) {
			b.Run(f.Name, func(b *testing.B) {
				_, be := newBackend(b, f)
				hs := make([]heap.Handle, 1000)
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					for j := range hs {
						hs[j] = mustAllocate(b, be, l)
					}
					for j := range hs {
						be.Deallocate(hs[j], l)
					}
				}
			})
		}
	})

	// Scenario 2: Alternating large and small blocks, freeing only the large
	// ones, leaves a comb of small holes behind.
	b.Run("AlternatingLargeSmall", func(b *testing.B) {
		large := heap.MustLayout(7000, 16)
		small := heap.MustLayout(100, 16)
		const pairs = 100

		for _, f := range backends(b) {
			b.Run(f.Name, func(b *testing.B) {
				_, be := newBackend(b, f)
				ls := make([]heap.Handle, pairs)
				ss := make([]heap.Handle, pairs)
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					for j := 0; j < pairs; j++ {
						ls[j] = mustAllocate(b, be, large)
						ss[j] = mustAllocate(b, be, small)
					}
					for j := 0; j < pairs; j++ {
						be.Deallocate(ls[j], large)
					}
					// Allocations now have to skip the small survivors.
					for j := 0; j < pairs; j++ {
						ls[j] = mustAllocate(b, be, small)
					}
					for j := 0; j < pairs; j++ {
						be.Deallocate(ls[j], small)
						be.Deallocate(ss[j], small)
					}
				}
			})
		}
	})

	// Scenario 3: High alignment forces padding on every request.
	b.Run("PageAligned", func(b *testing.B) {
		l := heap.MustLayout(64, 4096)
		for _, f := range backends(b) {
			b.Run(f.Name, func(b *testing.B) {
				_, be := newBackend(b, f)
				hs := make([]heap.Handle, 64)
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					for j := range hs {
						hs[j] = mustAllocate(b, be, l)
					}
					for j := len(hs) - 1; j >= 0; j-- {
						be.Deallocate(hs[j], l)
					}
				}
			})
		}
	})

	// Scenario 4: A long-lived block keeps every backend from ever draining,
	// so the bump allocator can only rewind, never reset.
	b.Run("Pinned", func(b *testing.B) {
		pin := heap.MustLayout(64, 16)
		l := heap.MustLayout(1024, 16)
		for _, f := range backends(b) {
			b.Run(f.Name, func(b *testing.B) {
				_, be := newBackend(b, f)
				p := mustAllocate(b, be, pin)
				defer be.Deallocate(p, pin)
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					h, err := be.Allocate(l)
					if err != nil {
						b.Skipf("exhausted after %d allocations", i)
					}
					be.Deallocate(h, l)
				}
			})
		}
	})
}
