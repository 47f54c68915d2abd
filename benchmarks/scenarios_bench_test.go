package benchmarks_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pavanmanishd/allocbench"
)

// BenchmarkScenarios replays every canonical scenario on every registered
// backend. One b.N step is one full replay on a fresh arena.
func BenchmarkScenarios(b *testing.B) {
	benchmarkCatalog(b, allocbench.ArenaFresh)
}

// BenchmarkScenariosReuse keeps one arena per backend for the whole run.
func BenchmarkScenariosReuse(b *testing.B) {
	benchmarkCatalog(b, allocbench.ArenaReuse)
}

func benchmarkCatalog(b *testing.B, policy allocbench.ArenaPolicy) {
	cfg := allocbench.DefaultConfig()
	cfg.ArenaPolicy = policy
	r, err := allocbench.NewRunner(cfg)
	require.NoError(b, err)

	for _, s := range allocbench.DefaultCatalog() {
		for _, f := range backends(b) {
			b.Run(s.Name+"/"+f.Name, func(b *testing.B) {
				sess, err := r.NewSession(s, f)
				require.NoError(b, err)
				defer sess.Close()

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := sess.Iterate(); err != nil {
						b.Fatal(err)
					}
				}
				b.StopTimer()
				allocs := float64(s.Workload.Allocations())
				b.ReportMetric(allocs, "allocs/replay")
				b.ReportMetric(float64(b.Elapsed().Nanoseconds())/(allocs*float64(b.N)), "ns/alloc")
			})
		}
	}
}
