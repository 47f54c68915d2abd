package heap

// Metrics is a snapshot of a backend's occupancy.
type Metrics struct {
	InUse       int // Bytes reserved by live blocks, after size rounding
	Capacity    int // Bytes the backend manages
	Free        int // Bytes available for new blocks
	FreeBlocks  int // Number of distinct free regions
	LargestFree int // Size of the largest free region
}

// Utilization returns the ratio of bytes in use to capacity (0.0 to 1.0).
// Returns 0.0 if the backend has no capacity.
func (m Metrics) Utilization() float64 {
	if m.Capacity == 0 {
		return 0
	}
	return float64(m.InUse) / float64(m.Capacity)
}

// Fragmentation returns 1 - LargestFree/Free: 0 when all free space is one
// region, approaching 1 as free space splinters. Returns 0.0 if nothing is
// free.
func (m Metrics) Fragmentation() float64 {
	if m.Free == 0 {
		return 0
	}
	return 1 - float64(m.LargestFree)/float64(m.Free)
}

// Add sums two snapshots. LargestFree is the larger of the two.
func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		InUse:       m.InUse + o.InUse,
		Capacity:    m.Capacity + o.Capacity,
		Free:        m.Free + o.Free,
		FreeBlocks:  m.FreeBlocks + o.FreeBlocks,
		LargestFree: max(m.LargestFree, o.LargestFree),
	}
}
