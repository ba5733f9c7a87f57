// Package statspipe - per-request-type counters. Grounded on the
// teacher's stats/target_stats.go naming convention and
// stats/common_statsd.go's per-metric-name tracker map idiom,
// generalized from aistore's fixed metric catalogue to this package's
// open set of request types (spec §7 "request types are defined by
// workload, not known in advance").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package statspipe

// TypeStats is one request type's accumulated counters for one
// snapshot window: "*.n" request count, "*.ns" latency histogram,
// "*.size" payload-size histogram, and a dropped-request count for
// fanout timeouts attributed to this type (spec §4.5).
type TypeStats struct {
	Count     uint64
	Dropped   uint64
	LatencyMs *Histogram
	SizeBytes *Histogram
}

func newTypeStats() *TypeStats {
	return &TypeStats{
		LatencyMs: NewHistogram(120),
		SizeBytes: NewHistogram(120),
	}
}

// Tracker is one reactor's per-request-type counter set (spec §7.1:
// "each reactor tracks its own stats, lock-free, merged out-of-band by
// the coordinator"). Not goroutine-safe: owned exclusively by its
// reactor.
type Tracker struct {
	byType map[uint32]*TypeStats
}

func NewTracker() *Tracker {
	return &Tracker{byType: make(map[uint32]*TypeStats, 8)}
}

func (t *Tracker) typeStats(typ uint32) *TypeStats {
	ts, ok := t.byType[typ]
	if !ok {
		ts = newTypeStats()
		t.byType[typ] = ts
	}
	return ts
}

// Record accounts for one completed request of the given type.
func (t *Tracker) Record(typ uint32, latencyMs float64, sizeBytes int) {
	ts := t.typeStats(typ)
	ts.Count++
	ts.LatencyMs.Sample(latencyMs)
	ts.SizeBytes.Sample(float64(sizeBytes))
}

// RecordDropped accounts for one fanout request that timed out without
// a reply.
func (t *Tracker) RecordDropped(typ uint32) {
	t.typeStats(typ).Dropped++
}

// Snapshot returns a deep copy of every tracked type's counters and
// resets the tracker in place, per spec §7.1's "sample then reset"
// cycle.
func (t *Tracker) Snapshot() map[uint32]*TypeStats {
	out := make(map[uint32]*TypeStats, len(t.byType))
	for typ, ts := range t.byType {
		out[typ] = &TypeStats{
			Count:     ts.Count,
			Dropped:   ts.Dropped,
			LatencyMs: ts.LatencyMs.Snapshot(),
			SizeBytes: ts.SizeBytes.Snapshot(),
		}
		ts.Count, ts.Dropped = 0, 0
		ts.LatencyMs.Reset()
		ts.SizeBytes.Reset()
	}
	return out
}

// mergeInto folds src's per-type counters into dst, creating entries
// for types dst hasn't seen yet.
func mergeInto(dst map[uint32]*TypeStats, src map[uint32]*TypeStats) {
	for typ, s := range src {
		d, ok := dst[typ]
		if !ok {
			d = newTypeStats()
			dst[typ] = d
		}
		d.Count += s.Count
		d.Dropped += s.Dropped
		d.LatencyMs.Accumulate(s.LatencyMs)
		d.SizeBytes.Accumulate(s.SizeBytes)
	}
}
