// Package hk provides a mechanism for registering cleanup/maintenance
// functions which are invoked at specified intervals: the per-reactor
// stats snapshot timers, the stats coordinator tick, and the driver's
// QPS rate controller. Fanout timeouts do not go through hk.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/dcperf/oldisim/cmn/cos"
	"github.com/dcperf/oldisim/cmn/debug"
	"github.com/dcperf/oldisim/cmn/nlog"
)

const (
	// UnregInterval, passed from a TimeFunc return value, unregisters
	// the entry instead of rescheduling it.
	UnregInterval = time.Duration(-1)

	dfltTick = 100 * time.Millisecond
)

type (
	// TimeFunc is called when an entry's deadline fires; it returns the
	// delay until the entry should fire again, or UnregInterval to
	// unregister it.
	TimeFunc func(now time.Time) time.Duration

	request struct {
		name string
		f    TimeFunc
		due  time.Time
		idx  int
		add  bool // false => unregister (by name)
	}

	entry struct {
		name string
		f    TimeFunc
		due  time.Time
		idx  int
	}

	minheap []*entry

	// HK is a single background goroutine that owns the full set of
	// registered entries; all mutation goes through reqCh so the heap
	// itself needs no locking.
	HK struct {
		entries map[string]*entry
		heap    minheap
		reqCh   chan request
		stopCh  cos.StopCh
		started chan struct{}
		once    sync.Once
	}
)

var _ cos.Runner = (*HK)(nil)

var DefaultHK = New()

func New() *HK {
	h := &HK{
		entries: make(map[string]*entry, 16),
		reqCh:   make(chan request, 64),
		started: make(chan struct{}),
	}
	h.stopCh.Init()
	return h
}

// TestInit resets DefaultHK for a fresh test run; tests call this before
// spawning DefaultHK.Run() in a goroutine.
func TestInit() { DefaultHK = New() }

func WaitStarted() { <-DefaultHK.started }

func (*HK) Name() string { return "housekeeper" }

// Reg registers f to first fire after initial, then reschedules itself
// using the TimeFunc's own return value each time it fires.
func Reg(name string, f TimeFunc, initial time.Duration) {
	DefaultHK.reg(name, f, initial)
}

func Unreg(name string) { DefaultHK.unreg(name) }

func (h *HK) reg(name string, f TimeFunc, initial time.Duration) {
	h.reqCh <- request{name: name, f: f, due: time.Now().Add(initial), add: true}
}

func (h *HK) unreg(name string) {
	h.reqCh <- request{name: name, add: false}
}

func (h *HK) Run() (err error) {
	ticker := time.NewTicker(dfltTick)
	defer ticker.Stop()

	h.once.Do(func() { close(h.started) })

	for {
		select {
		case <-ticker.C:
			h.fire(time.Now())
		case req := <-h.reqCh:
			h.apply(req)
		case <-h.stopCh.Listen():
			return nil
		}
	}
}

func (h *HK) Stop(err error) {
	nlog.Infof("Stopping %s, err: %v", h.Name(), err)
	h.stopCh.Close()
}

func (h *HK) apply(req request) {
	if !req.add {
		if e, ok := h.entries[req.name]; ok {
			heap.Remove(&h.heap, e.idx)
			delete(h.entries, req.name)
		}
		return
	}
	debug.Assert(h.entries[req.name] == nil, req.name)
	e := &entry{name: req.name, f: req.f, due: req.due}
	h.entries[req.name] = e
	heap.Push(&h.heap, e)
}

// fire pops every entry whose deadline has passed, invokes it, and
// reschedules (or drops) it based on the TimeFunc's return value.
// Mirrors the priority-by-deadline pop-fire-reschedule loop the teacher's
// stream collector runs per tick, generalized from a fixed per-stream
// idle-ticks countdown to an arbitrary next-due-time heap.
func (h *HK) fire(now time.Time) {
	for len(h.heap) > 0 && !h.heap[0].due.After(now) {
		e := h.heap[0]
		heap.Pop(&h.heap)
		delete(h.entries, e.name)

		next := e.f(now)
		if next == UnregInterval {
			continue
		}
		e.due = now.Add(next)
		h.entries[e.name] = e
		heap.Push(&h.heap, e)
	}
}

// minheap is a container/heap.Interface ordering entries by due time,
// same min-heap-by-deadline shape as the teacher's stream collector.
func (m minheap) Len() int            { return len(m) }
func (m minheap) Less(i, j int) bool  { return m[i].due.Before(m[j].due) }
func (m minheap) Swap(i, j int)       { m[i], m[j] = m[j], m[i]; m[i].idx = i; m[j].idx = j }
func (m *minheap) Push(x any) {
	e := x.(*entry)
	e.idx = len(*m)
	*m = append(*m, e)
}
func (m *minheap) Pop() any {
	old := *m
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*m = old[:n-1]
	return e
}
