package allocbench

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pavanmanishd/allocbench/heap"
)

const metricsNamespace = "allocbench"

var labels = []string{"scenario", "backend"}

// Reporter exports benchmark results as prometheus metrics.
type Reporter struct {
	wallSeconds   *prometheus.SummaryVec
	cpuSeconds    *prometheus.SummaryVec
	failures      *prometheus.CounterVec
	peakInUse     *prometheus.GaugeVec
	fragmentation *prometheus.GaugeVec

	allocateBytes   *prometheus.CounterVec
	allocateObjects *prometheus.CounterVec
	inuseBytes      *prometheus.GaugeVec
	inuseObjects    *prometheus.GaugeVec
}

// NewReporter creates the collectors and registers them with reg.
func NewReporter(reg prometheus.Registerer) (*Reporter, error) {
	r := &Reporter{
		wallSeconds: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  metricsNamespace,
				Subsystem:  "iteration",
				Name:       "wall_seconds",
				Help:       "wall time of one workload replay",
				Objectives: map[float64]float64{0.5: 0.05, 0.95: 0.01},
			}, labels),
		cpuSeconds: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  metricsNamespace,
				Subsystem:  "iteration",
				Name:       "cpu_seconds",
				Help:       "user plus system time of one workload replay",
				Objectives: map[float64]float64{0.5: 0.05, 0.95: 0.01},
			}, labels),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "iteration",
				Name:      "failed_total",
				Help:      "aborted iterations by failure kind",
			}, []string{"scenario", "backend", "kind"}),
		peakInUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "heap",
				Name:      "peak_inuse_bytes",
				Help:      "bytes held by the backend at the workload peak",
			}, labels),
		fragmentation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "heap",
				Name:      "peak_fragmentation_ratio",
				Help:      "1 - largest free block / free bytes at the workload peak",
			}, labels),
		allocateBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "backend",
				Name:      "allocate_bytes_total",
				Help:      "requested bytes",
			}, labels),
		allocateObjects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "backend",
				Name:      "allocate_objects_total",
				Help:      "allocate calls that succeeded",
			}, labels),
		inuseBytes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "backend",
				Name:      "inuse_bytes",
				Help:      "requested bytes not yet deallocated",
			}, labels),
		inuseObjects: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "backend",
				Name:      "inuse_objects",
				Help:      "blocks not yet deallocated",
			}, labels),
	}
	for _, c := range []prometheus.Collector{
		r.wallSeconds, r.cpuSeconds, r.failures, r.peakInUse, r.fragmentation,
		r.allocateBytes, r.allocateObjects, r.inuseBytes, r.inuseObjects,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}
	return r, nil
}

// ObserveSample records one iteration.
func (r *Reporter) ObserveSample(scenario, backend string, s Sample) {
	r.wallSeconds.WithLabelValues(scenario, backend).Observe(s.Wall.Seconds())
	r.cpuSeconds.WithLabelValues(scenario, backend).Observe(s.CPU.Seconds())
}

// RecordFailure counts an aborted iteration.
func (r *Reporter) RecordFailure(scenario, backend, kind string) {
	r.failures.WithLabelValues(scenario, backend, kind).Inc()
}

// ObservePeak records the heap metrics taken at the workload peak.
func (r *Reporter) ObservePeak(scenario, backend string, m heap.Metrics) {
	r.peakInUse.WithLabelValues(scenario, backend).Set(float64(m.InUse))
	r.fragmentation.WithLabelValues(scenario, backend).Set(m.Fragmentation())
}

// Meter wraps b so its traffic is counted under the given labels.
func (r *Reporter) Meter(scenario, backend string, b heap.Backend) *Metered {
	return NewMetered(b,
		r.allocateBytes.WithLabelValues(scenario, backend),
		r.inuseBytes.WithLabelValues(scenario, backend),
		r.allocateObjects.WithLabelValues(scenario, backend),
		r.inuseObjects.WithLabelValues(scenario, backend),
	)
}

// failureKind classifies an iteration error for the failures counter.
func failureKind(err error) string {
	var ae *AllocationError
	switch {
	case errors.As(err, &ae):
		return "allocation"
	case errors.Is(err, heap.ErrContractViolation):
		return "contract"
	case errors.Is(err, ErrLeak):
		return "leak"
	case errors.Is(err, ErrBackendPanic):
		return "panic"
	}
	return "other"
}
