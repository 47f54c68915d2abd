package allocbench

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/pavanmanishd/allocbench/heap"
)

// Sample is the cost of one complete replay of a workload.
type Sample struct {
	Wall time.Duration
	CPU  time.Duration
}

// Result collects the samples of one scenario on one backend.
type Result struct {
	Scenario    string
	Backend     string
	Allocations int // allocate operations per iteration
	Samples     []Sample

	// Peak is the backend's view of the heap at the workload's busiest
	// point. Set only when Profiled.
	Peak     heap.Metrics
	Profiled bool
}

// Summary condenses a Result's samples.
type Summary struct {
	Iterations int
	Mean       time.Duration
	Median     time.Duration
	P95        time.Duration
	Min        time.Duration
	Max        time.Duration
	StdDev     time.Duration
	CPUMean    time.Duration

	// AllocsPerSecond is allocate operations per second of mean wall time.
	AllocsPerSecond float64
}

// Summary computes statistics over the wall and CPU times. A result with
// no samples has a zero summary.
func (r *Result) Summary() Summary {
	if len(r.Samples) == 0 {
		return Summary{}
	}
	wall := make(stats.Float64Data, len(r.Samples))
	cpu := make(stats.Float64Data, len(r.Samples))
	for i, s := range r.Samples {
		wall[i] = float64(s.Wall)
		cpu[i] = float64(s.CPU)
	}

	// The stats functions only fail on empty input.
	mean, _ := stats.Mean(wall)
	median, _ := stats.Median(wall)
	p95, _ := stats.PercentileNearestRank(wall, 95)
	lo, _ := stats.Min(wall)
	hi, _ := stats.Max(wall)
	sd, _ := stats.StandardDeviation(wall)
	cpuMean, _ := stats.Mean(cpu)

	s := Summary{
		Iterations: len(r.Samples),
		Mean:       time.Duration(mean),
		Median:     time.Duration(median),
		P95:        time.Duration(p95),
		Min:        time.Duration(lo),
		Max:        time.Duration(hi),
		StdDev:     time.Duration(sd),
		CPUMean:    time.Duration(cpuMean),
	}
	if mean > 0 {
		s.AllocsPerSecond = float64(r.Allocations) / (mean / float64(time.Second))
	}
	return s
}

// PerOp returns the mean wall time of one allocate/deallocate pair.
func (s Summary) PerOp(allocations int) time.Duration {
	if allocations <= 0 {
		return 0
	}
	return s.Mean / time.Duration(allocations)
}
