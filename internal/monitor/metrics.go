package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks request volume and latency for the gateway.
type Metrics struct {
	apiRequests  uint64
	apiErrors    uint64
	ordersPlaced uint64
	legFailures  uint64

	APILatency *LatencyHistogram
}

// NewMetrics creates a metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{APILatency: NewLatencyHistogram(1000)}
}

func (m *Metrics) IncrementAPI()         { atomic.AddUint64(&m.apiRequests, 1) }
func (m *Metrics) IncrementAPIErrors()   { atomic.AddUint64(&m.apiErrors, 1) }
func (m *Metrics) IncrementOrders()      { atomic.AddUint64(&m.ordersPlaced, 1) }
func (m *Metrics) IncrementLegFailures() { atomic.AddUint64(&m.legFailures, 1) }

// Snapshot is a point-in-time metrics view.
type Snapshot struct {
	APIRequests  uint64       `json:"apiRequests"`
	APIErrors    uint64       `json:"apiErrors"`
	OrdersPlaced uint64       `json:"ordersPlaced"`
	LegFailures  uint64       `json:"legFailures"`
	APILatencyMs LatencyStats `json:"apiLatencyMs"`
}

// Snapshot returns current counters and latency stats.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		APIRequests:  atomic.LoadUint64(&m.apiRequests),
		APIErrors:    atomic.LoadUint64(&m.apiErrors),
		OrdersPlaced: atomic.LoadUint64(&m.ordersPlaced),
		LegFailures:  atomic.LoadUint64(&m.legFailures),
		APILatencyMs: m.APILatency.Stats(),
	}
}

// LatencyHistogram keeps a sliding window of samples in milliseconds.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

// LatencyStats summarizes a histogram window.
type LatencyStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// NewLatencyHistogram creates a sliding window of the given size.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{samples: make([]float64, 0, size), maxSize: size}
}

// RecordDuration adds one sample.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, float64(d.Nanoseconds())/1e6)
}

// Stats computes min, max, avg and percentiles over the window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}
	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return LatencyStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[min(int(float64(n)*0.95), n-1)],
		P99:   sorted[min(int(float64(n)*0.99), n-1)],
	}
}
