package allocbench

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pavanmanishd/allocbench/heap"
)

// Metered counts the traffic through a backend. Any collector may be nil.
type Metered struct {
	upstream heap.Backend

	allocateBytesCounter   prometheus.Counter
	inuseBytesGauge        prometheus.Gauge
	allocateObjectsCounter prometheus.Counter
	inuseObjectsGauge      prometheus.Gauge
}

var _ heap.Backend = (*Metered)(nil)

// NewMetered wraps upstream with the given collectors.
func NewMetered(
	upstream heap.Backend,
	allocateBytesCounter prometheus.Counter,
	inuseBytesGauge prometheus.Gauge,
	allocateObjectsCounter prometheus.Counter,
	inuseObjectsGauge prometheus.Gauge,
) *Metered {
	return &Metered{
		upstream:               upstream,
		allocateBytesCounter:   allocateBytesCounter,
		inuseBytesGauge:        inuseBytesGauge,
		allocateObjectsCounter: allocateObjectsCounter,
		inuseObjectsGauge:      inuseObjectsGauge,
	}
}

// Allocate forwards to upstream and counts successful allocations.
func (m *Metered) Allocate(l heap.Layout) (heap.Handle, error) {
	h, err := m.upstream.Allocate(l)
	if err != nil {
		return 0, err
	}
	size := float64(l.Size)
	if m.allocateBytesCounter != nil {
		m.allocateBytesCounter.Add(size)
	}
	if m.inuseBytesGauge != nil {
		m.inuseBytesGauge.Add(size)
	}
	if m.allocateObjectsCounter != nil {
		m.allocateObjectsCounter.Inc()
	}
	if m.inuseObjectsGauge != nil {
		m.inuseObjectsGauge.Inc()
	}
	return h, nil
}

// Deallocate forwards to upstream and lowers the in-use gauges.
func (m *Metered) Deallocate(h heap.Handle, l heap.Layout) {
	m.upstream.Deallocate(h, l)
	if m.inuseBytesGauge != nil {
		m.inuseBytesGauge.Sub(float64(l.Size))
	}
	if m.inuseObjectsGauge != nil {
		m.inuseObjectsGauge.Dec()
	}
}

// Unwrap returns the decorated backend.
func (m *Metered) Unwrap() heap.Backend {
	return m.upstream
}
