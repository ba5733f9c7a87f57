package statspipe_test

import (
	"testing"

	"github.com/dcperf/oldisim/statspipe"
)

func TestCoordinatorMergesMinimumAcrossSources(t *testing.T) {
	t1 := statspipe.NewTracker()
	t2 := statspipe.NewTracker()
	s1, s2 := statspipe.NewSource(), statspipe.NewSource()

	t1.Record(7, 1.5, 100)
	s1.Push(t1.Snapshot())
	t1.Record(7, 2.5, 200)
	s1.Push(t1.Snapshot()) // s1 has 2 queued snapshots

	t2.Record(7, 3.0, 50)
	s2.Push(t2.Snapshot()) // s2 has only 1 queued snapshot

	coord := statspipe.NewCoordinator([]*statspipe.Source{s1, s2})
	coord.Tick() // must drain only 1 (the minimum across sources)

	metrics := coord.WindowMetrics(0)
	ts, ok := metrics[7]
	if !ok {
		t.Fatalf("no metrics recorded for type 7")
	}
	// exactly one window merged (s2's only snapshot): one sample from
	// each source, not two from s1
	if ts.QPS <= 0 {
		t.Fatalf("QPS = %v, want > 0", ts.QPS)
	}

	// s2 has no more queued snapshots, so a second Tick must not drain
	// s1's remaining one either
	coord.Tick()
	if got := coord.WindowMetrics(0)[7]; got.LatencyMeanMs != ts.LatencyMeanMs {
		t.Fatalf("second Tick drained unevenly: mean latency changed from %v to %v", ts.LatencyMeanMs, got.LatencyMeanMs)
	}
}

func TestCoordinatorDroppedRequestsPropagate(t *testing.T) {
	tr := statspipe.NewTracker()
	tr.RecordDropped(3)
	s := statspipe.NewSource()
	s.Push(tr.Snapshot())

	coord := statspipe.NewCoordinator([]*statspipe.Source{s})
	coord.Tick()

	metrics := coord.WindowMetrics(0)
	if metrics[3].DroppedRequests != 1 {
		t.Fatalf("DroppedRequests = %d, want 1", metrics[3].DroppedRequests)
	}
}
