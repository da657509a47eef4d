package malloc

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports heap usage to prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	capacityBytes prometheus.Gauge
	inuseBytes    prometheus.Gauge
	freeRegions   prometheus.Gauge
	allocateBytes prometheus.Counter
	allocateTotal prometheus.Counter
	freeTotal     prometheus.Counter
	failuresTotal prometheus.Counter
}

// NewMetrics creates heap metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		capacityBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "capacity_bytes",
			Help:      "Size of the heap arena in bytes.",
		}),
		inuseBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "inuse_bytes",
			Help:      "Bytes currently allocated from the heap.",
		}),
		freeRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "free_regions",
			Help:      "Number of entries in the heap free list.",
		}),
		allocateBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "allocate_bytes_total",
			Help:      "Bytes handed out by the heap.",
		}),
		allocateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "allocate_total",
			Help:      "Successful heap allocations.",
		}),
		freeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "free_total",
			Help:      "Blocks returned to the heap.",
		}),
		failuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heap",
			Name:      "allocate_failures_total",
			Help:      "Heap allocations that failed, including invalid requests.",
		}),
	}
}

// Register registers all collectors to r.
func (m *Metrics) Register(r prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.capacityBytes,
		m.inuseBytes,
		m.freeRegions,
		m.allocateBytes,
		m.allocateTotal,
		m.freeTotal,
		m.failuresTotal,
	}
}

func (m *Metrics) setCapacity(n int) {
	if m == nil {
		return
	}
	m.capacityBytes.Set(float64(n))
}

func (m *Metrics) setInUse(n, regions int) {
	if m == nil {
		return
	}
	m.inuseBytes.Set(float64(n))
	m.freeRegions.Set(float64(regions))
}

func (m *Metrics) observeAlloc(size int) {
	if m == nil {
		return
	}
	m.allocateTotal.Inc()
	m.allocateBytes.Add(float64(size))
}

func (m *Metrics) observeFree(int) {
	if m == nil {
		return
	}
	m.freeTotal.Inc()
}

func (m *Metrics) incFailure() {
	if m == nil {
		return
	}
	m.failuresTotal.Inc()
}
