package statspipe_test

import (
	"math"
	"testing"

	"github.com/dcperf/oldisim/statspipe"
)

func TestHistogramEmpty(t *testing.T) {
	h := statspipe.NewHistogram(100)
	if !math.IsNaN(h.Average()) {
		t.Fatalf("Average of empty histogram = %v, want NaN", h.Average())
	}
	if !math.IsNaN(h.Percentile(50)) {
		t.Fatalf("Percentile of empty histogram = %v, want NaN", h.Percentile(50))
	}
	if h.Total() != 0 {
		t.Fatalf("Total = %d, want 0", h.Total())
	}
}

func TestHistogramPercentileMonotonic(t *testing.T) {
	h := statspipe.NewHistogram(200)
	for i := 1; i <= 1000; i++ {
		h.Sample(float64(i))
	}
	p50 := h.Percentile(50)
	p90 := h.Percentile(90)
	p99 := h.Percentile(99)
	if !(p50 < p90 && p90 < p99) {
		t.Fatalf("percentiles not monotonic: p50=%v p90=%v p99=%v", p50, p90, p99)
	}
	// with 1000 uniform samples in [1,1000], p50 should land near 500
	if p50 < 300 || p50 > 700 {
		t.Fatalf("p50 = %v, expected roughly 500", p50)
	}
}

func TestHistogramAccumulate(t *testing.T) {
	a := statspipe.NewHistogram(50)
	b := statspipe.NewHistogram(50)
	for i := 0; i < 10; i++ {
		a.Sample(5)
	}
	for i := 0; i < 20; i++ {
		b.Sample(5)
	}
	a.Accumulate(b)
	if a.Total() != 30 {
		t.Fatalf("Total after accumulate = %d, want 30", a.Total())
	}
}

func TestHistogramResetAndSnapshot(t *testing.T) {
	h := statspipe.NewHistogram(50)
	h.Sample(10)
	h.Sample(20)
	snap := h.Snapshot()
	h.Reset()
	if h.Total() != 0 {
		t.Fatalf("Total after reset = %d, want 0", h.Total())
	}
	if snap.Total() != 2 {
		t.Fatalf("snapshot Total = %d, want 2 (must survive source reset)", snap.Total())
	}
}
