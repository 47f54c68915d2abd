package benchmarks_test

import (
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
)

// BenchmarkRequestScenarios simulates request-scoped buffers: every request
// takes a header table and two byte buffers, then returns them.
func BenchmarkRequestScenarios(b *testing.B) {
	type header struct {
		Key, Value [32]byte
	}

	for _, f := range backends(b) {
		b.Run(f.Name, func(b *testing.B) {
			a, be := newBackend(b, f)
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				headers, hh, err := heap.AllocSlice[header](be, a, 20)
				if err != nil {
					b.Fatal(err)
				}
				body, bh, err := heap.AllocSlice[byte](be, a, 1024)
				if err != nil {
					b.Fatal(err)
				}
				resp, rh, err := heap.AllocSlice[byte](be, a, 2048)
				if err != nil {
					b.Fatal(err)
				}

				headers[0].Key[0] = 'h'
				body[0] = 1
				resp[0] = 2

				heap.Free[byte](be, rh, 2048)
				heap.Free[byte](be, bh, 1024)
				heap.Free[header](be, hh, 20)
			}
		})
	}

	b.Run("Builtin", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			headers := make([]header, 20)
			body := make([]byte, 1024)
			resp := make([]byte, 2048)

			headers[0].Key[0] = 'h'
			body[0] = 1
			resp[0] = 2
		}
	})
}

// BenchmarkQueryScenarios allocates a result set of fixed-size rows that
// lives across several queries, freeing the oldest query first.
func BenchmarkQueryScenarios(b *testing.B) {
	type row struct {
		ID     int64
		Amount float64
		Data   [112]byte
	}
	const (
		rowsPerQuery = 256
		window       = 4
	)

	for _, f := range backends(b) {
		b.Run(f.Name, func(b *testing.B) {
			a, be := newBackend(b, f)
			var ring [window]heap.Handle
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				slot := i % window
				if ring[slot] != 0 {
					heap.Free[row](be, ring[slot], rowsPerQuery)
				}
				rows, h, err := heap.AllocSlice[row](be, a, rowsPerQuery)
				if errors.Is(err, heap.ErrExhausted) {
					// The bump backend never drains under a sliding window.
					b.Skipf("exhausted after %d queries", i)
				}
				if err != nil {
					b.Fatal(err)
				}
				ring[slot] = h

				var sum int64
				for j := range rows {
					rows[j].ID = int64(j)
					sum += rows[j].ID
				}
				_ = sum
			}
			b.StopTimer()
			for _, h := range ring {
				if h != 0 {
					heap.Free[row](be, h, rowsPerQuery)
				}
			}
		})
	}

	b.Run("Builtin", func(b *testing.B) {
		var ring [window][]row
		for i := 0; i < b.N; i++ {
			rows := make([]row, rowsPerQuery)
			for j := range rows {
				rows[j].ID = int64(j)
			}
			ring[i%window] = rows
		}
	})
}
