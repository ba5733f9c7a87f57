// Package statspipe - Coordinator merges per-reactor snapshots into a
// bounded window deque and a run-lifetime aggregate (spec §4.7), from
// which derived metrics are computed for the monitor HTTP endpoint.
// Grounded on spec.md §4.7's "drain the minimum across-reactors
// snapshot count" design and on the teacher's `hk` housekeeping
// registration idiom for driving the periodic merge tick.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package statspipe

import (
	"sync"
	"time"
)

// kStatsMaxWindows bounds the retained snapshot deque (spec §4.7).
const kStatsMaxWindows = 1800

// WindowSizes are the trailing windows (in seconds) the monitor HTTP
// endpoint reports derived metrics over (spec §6 "/child_stats").
var WindowSizes = []int{1, 5, 30, 60, 300, 600, 1800}

// snapshot is one merged window: per-type counters accumulated across
// all reactors for a single W-second tick.
type snapshot struct {
	at     time.Time
	byType map[uint32]*TypeStats
}

// Source is the coordinator-facing view of one reactor's tracker: a
// FIFO of not-yet-drained per-type snapshots, one push per reactor
// snapshot timer tick.
type Source struct {
	mu    sync.Mutex
	queue []map[uint32]*TypeStats
}

func NewSource() *Source { return &Source{} }

// Push is called by the owning reactor's snapshot timer (spec §4.7
// "every W seconds ... copies the current per-type stats into an
// in-process deque").
func (s *Source) Push(m map[uint32]*TypeStats) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
}

func (s *Source) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Source) pop() map[uint32]*TypeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.queue[0]
	s.queue = s.queue[1:]
	return m
}

// Coordinator merges snapshots pulled from every registered Source
// into a bounded deque of global snapshots plus a run-lifetime
// aggregate (spec §4.7).
type Coordinator struct {
	mu        sync.Mutex
	sources   []*Source
	windows   []*snapshot
	lifetime  map[uint32]*TypeStats
	startedAt time.Time
}

func NewCoordinator(sources []*Source) *Coordinator {
	return &Coordinator{
		sources:   sources,
		lifetime:  make(map[uint32]*TypeStats),
		startedAt: time.Now(),
	}
}

// Tick drains the minimum across-sources queued-snapshot count,
// merging each pulled index bin-wise into one global snapshot appended
// to the window deque (oldest evicted past kStatsMaxWindows) and into
// the lifetime aggregate. Meant to be driven by an hk-registered
// periodic callback on the main thread (spec §4.7 "main-thread
// coordinator timer").
func (c *Coordinator) Tick() {
	if len(c.sources) == 0 {
		return
	}
	minLen := c.sources[0].len()
	for _, s := range c.sources[1:] {
		if n := s.len(); n < minLen {
			minLen = n
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < minLen; i++ {
		merged := make(map[uint32]*TypeStats)
		for _, s := range c.sources {
			mergeInto(merged, s.pop())
		}
		c.windows = append(c.windows, &snapshot{at: time.Now(), byType: merged})
		mergeInto(c.lifetime, merged)
	}
	if overflow := len(c.windows) - kStatsMaxWindows; overflow > 0 {
		c.windows = c.windows[overflow:]
	}
}

// WindowMetrics reports the derived per-type metrics (spec §6
// "/child_stats") over the trailing windowSeconds-second interval, or
// over the whole run if windowSeconds <= 0 or exceeds it.
func (c *Coordinator) WindowMetrics(windowSeconds int) map[uint32]Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if windowSeconds <= 0 {
		return metricsFrom(c.lifetime, time.Since(c.startedAt))
	}

	cutoff := time.Now().Add(-time.Duration(windowSeconds) * time.Second)
	merged := make(map[uint32]*TypeStats)
	var elapsed time.Duration
	for i := len(c.windows) - 1; i >= 0; i-- {
		w := c.windows[i]
		if w.at.Before(cutoff) {
			break
		}
		mergeInto(merged, w.byType)
		elapsed = time.Since(w.at)
	}
	if elapsed == 0 {
		elapsed = time.Duration(windowSeconds) * time.Second
	}
	return metricsFrom(merged, elapsed)
}

// Metrics is the derived-metric view of one request type over one
// window (spec §6's /child_stats body).
type Metrics struct {
	QPS             float64 `json:"qps"`
	RxMBps          float64 `json:"rx_mbps"`
	TxMBps          float64 `json:"tx_mbps"`
	LatencyMeanMs   float64 `json:"latency_mean"`
	Latency50pMs    float64 `json:"latency_50p"`
	Latency90pMs    float64 `json:"latency_90p"`
	Latency95pMs    float64 `json:"latency_95p"`
	Latency99pMs    float64 `json:"latency_99p"`
	DroppedRequests uint64  `json:"dropped_requests,omitempty"`
}

// Summary is the per-type run-lifetime report printed to stdout on
// shutdown (spec §6's "Stats for node under test" block).
type Summary struct {
	Type          uint32
	RxMBps        float64
	RxBytes       uint64
	TxMBps        float64
	TxBytes       uint64
	QPS           float64
	Queries       uint64
	MinMs         float64
	AvgMs         float64
	P50Ms         float64
	P90Ms         float64
	P95Ms         float64
	P99Ms         float64
	P999Ms        float64
}

// LifetimeSummary reports every request type's run-lifetime stats,
// formatted for the spec §6 SIGINT stdout block.
func (c *Coordinator) LifetimeSummary() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startedAt).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}
	out := make([]Summary, 0, len(c.lifetime))
	for typ, ts := range c.lifetime {
		bytes := uint64(ts.SizeBytes.Sum())
		out = append(out, Summary{
			Type:    typ,
			RxMBps:  ts.SizeBytes.Sum() / (1 << 20) / elapsed,
			RxBytes: bytes,
			QPS:     float64(ts.Count) / elapsed,
			Queries: ts.Count,
			MinMs:   ts.LatencyMs.Minimum(),
			AvgMs:   ts.LatencyMs.Average(),
			P50Ms:   ts.LatencyMs.Percentile(50),
			P90Ms:   ts.LatencyMs.Percentile(90),
			P95Ms:   ts.LatencyMs.Percentile(95),
			P99Ms:   ts.LatencyMs.Percentile(99),
			P999Ms:  ts.LatencyMs.Percentile(99.9),
		})
	}
	return out
}

func metricsFrom(byType map[uint32]*TypeStats, elapsed time.Duration) map[uint32]Metrics {
	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}
	out := make(map[uint32]Metrics, len(byType))
	for typ, ts := range byType {
		mb := ts.SizeBytes.Average() * float64(ts.Count) / (1 << 20)
		out[typ] = Metrics{
			QPS:             float64(ts.Count) / secs,
			RxMBps:          mb / secs,
			TxMBps:          0, // no emitted-byte counter is kept, so this is always 0
			LatencyMeanMs:   ts.LatencyMs.Average(),
			Latency50pMs:    ts.LatencyMs.Percentile(50),
			Latency90pMs:    ts.LatencyMs.Percentile(90),
			Latency95pMs:    ts.LatencyMs.Percentile(95),
			Latency99pMs:    ts.LatencyMs.Percentile(99),
			DroppedRequests: ts.Dropped,
		}
	}
	return out
}
