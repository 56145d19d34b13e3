package monitor

import (
	"testing"
	"time"
)

func TestSnapshotCounters(t *testing.T) {
	m := NewMetrics()
	m.IncrementAPI()
	m.IncrementAPI()
	m.IncrementAPIErrors()
	m.IncrementOrders()
	m.IncrementLegFailures()

	s := m.Snapshot()
	if s.APIRequests != 2 || s.APIErrors != 1 || s.OrdersPlaced != 1 || s.LegFailures != 1 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}

func TestLatencyHistogramStats(t *testing.T) {
	h := NewLatencyHistogram(100)
	for _, ms := range []int{10, 20, 30, 40, 50} {
		h.RecordDuration(time.Duration(ms) * time.Millisecond)
	}

	s := h.Stats()
	if s.Count != 5 {
		t.Fatalf("count = %d, want 5", s.Count)
	}
	if s.Min != 10 || s.Max != 50 {
		t.Fatalf("min/max = %v/%v, want 10/50", s.Min, s.Max)
	}
	if s.Avg != 30 {
		t.Fatalf("avg = %v, want 30", s.Avg)
	}
	if s.P50 != 30 {
		t.Fatalf("p50 = %v, want 30", s.P50)
	}
}

func TestLatencyHistogramWindowSlides(t *testing.T) {
	h := NewLatencyHistogram(3)
	for _, ms := range []int{100, 1, 2, 3} {
		h.RecordDuration(time.Duration(ms) * time.Millisecond)
	}
	if s := h.Stats(); s.Max != 3 {
		t.Fatalf("max = %v, the oldest sample should have been evicted", s.Max)
	}
}

func TestLatencyHistogramEmpty(t *testing.T) {
	h := NewLatencyHistogram(10)
	if s := h.Stats(); s.Count != 0 || s.Max != 0 {
		t.Fatalf("empty histogram stats: %+v", s)
	}
}
