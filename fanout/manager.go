// Package fanout - Manager allocates request-id ranges, dispatches
// child requests round-robin within each child's connection pool, and
// maintains the id→tracker index. Grounded on
// FanoutManagerImpl.h/FanoutManager.cc's FanoutManagerImpl (next_request_id
// counter, tracker_by_id map, per-child connection round-robin cursor,
// RegisterReplyTracker/RegisterTrackerTimeout/CloseTracker sequencing).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package fanout

import (
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dcperf/oldisim/cmn/debug"
	"github.com/dcperf/oldisim/cmn/nlog"
)

// Conn is the subset of a child connection a Manager needs: issuing a
// request. Dropped-request stats go through ChildPool.OnDropped, not
// through Conn. Implemented by session.ChildConn.
type Conn interface {
	IssueRequest(typ uint32, requestID uint64, payload []byte)
}

// ChildPool is one configured child's round-robin connection set
// (spec §3 "Child node state": a sequence of outbound connections, a
// rotating cursor, per-child stats).
type ChildPool struct {
	ChildID     uint32
	Conns       []Conn
	next        int
	OnDropped   func(requestType uint32) // child's dropped-request stat hook
}

func (c *ChildPool) pick() Conn {
	debug.Assert(len(c.Conns) > 0, "child pool has no connections")
	conn := c.Conns[c.next]
	c.next = (c.next + 1) % len(c.Conns)
	return conn
}

// Manager is bound to one reactor (spec §4.6: "each reactor owns a
// fanout manager instance"); it is not safe for concurrent use by more
// than one goroutine — the owning reactor is the only caller. Every
// entry point (Fanout, Resolve, CloseOnTimeout) must therefore only
// ever run on that one goroutine: Resolve is driven by a child's reply
// callback, which the orchestrator marshals onto the reactor via
// submit below before calling in; a timeout fires on the Go runtime's
// own timer goroutine, so Manager marshals that call itself.
type Manager struct {
	children []*ChildPool
	nextID   uint64
	byID     map[uint64]*Tracker

	// submit marshals a func onto the owning reactor's task queue
	// (reactor.Reactor.Submit), so a timer-goroutine timeout close
	// never touches byID concurrently with a reply resolving on the
	// reactor goroutine (spec §4.5 "arm the timeout on the originating
	// reactor's timer wheel").
	submit func(func())

	// timerSem bounds the number of concurrently-armed timeout timers
	// so an unbounded fanout burst can't spawn unbounded goroutines via
	// time.AfterFunc. Acquisition never blocks: once every permit is
	// held, a new Fanout still proceeds but its tracker gets no
	// deadline. A permit is released when its timer fires or is stopped
	// by the last reply.
	timerSem *semaphore.Weighted
}

const maxArmedTimeouts = 100_000

// NewManager builds a Manager bound to one reactor. submit must
// enqueue f onto that same reactor's task queue (reactor.Reactor.Submit).
func NewManager(children []*ChildPool, submit func(func())) *Manager {
	return &Manager{
		children: children,
		byID:     make(map[uint64]*Tracker, 256),
		submit:   submit,
		timerSem: semaphore.NewWeighted(maxArmedTimeouts),
	}
}

// ChildPool returns the pool for id, for orchestrator code wiring up
// MakeChildConnection(s).
func (m *Manager) ChildPool(id uint32) *ChildPool { return m.children[id] }

// Fanout issues one request per entry in reqs, round-robin dispatched
// within each entry's target child's connection pool, and registers a
// tracker correlating all N replies. done fires exactly once, on close.
// A zero timeout leaves the fanout unbounded (caller relies on an
// upstream deadline instead).
func (m *Manager) Fanout(reqs []Request, done DoneFunc, timeout time.Duration) *Tracker {
	n := len(reqs)
	startID := m.nextID
	m.nextID += uint64(n)

	t := newTracker(startID, n, done)
	for i, req := range reqs {
		t.Replies[i].ChildID = req.ChildID
		t.Replies[i].Type = req.Type
	}
	children := m.children // captured for onTimeout closures below
	t.onTimeout = func(childID, typ uint32) {
		if int(childID) >= len(children) {
			return
		}
		if cp := children[childID]; cp.OnDropped != nil {
			cp.OnDropped(typ)
		}
	}

	m.register(t)

	for i, req := range reqs {
		conn := m.children[req.ChildID].pick()
		conn.IssueRequest(req.Type, startID+uint64(i), req.Payload)
	}

	if timeout > 0 {
		m.armTimeout(t, timeout)
	}
	return t
}

// FanoutAll is Fanout with one request per configured child (spec
// §4.5's fanout_all).
func (m *Manager) FanoutAll(typ uint32, payload []byte, done DoneFunc, timeout time.Duration) *Tracker {
	reqs := make([]Request, len(m.children))
	for i, cp := range m.children {
		reqs[i] = Request{ChildID: cp.ChildID, Type: typ, Payload: payload}
	}
	return m.Fanout(reqs, done, timeout)
}

func (m *Manager) register(t *Tracker) {
	for i := 0; i < t.NumRequests; i++ {
		id := t.StartID + uint64(i)
		debug.Assert(m.byID[id] == nil, "duplicate tracker id")
		m.byID[id] = t
	}
}

func (m *Manager) unregister(t *Tracker) {
	for i := 0; i < t.NumRequests; i++ {
		delete(m.byID, t.StartID+uint64(i))
	}
}

func (m *Manager) armTimeout(t *Tracker, timeout time.Duration) {
	if !m.timerSem.TryAcquire(1) {
		nlog.Warningln("fanout: too many armed timeouts, tracker left without a deadline")
		return
	}
	t.timeoutTimer = time.AfterFunc(timeout, func() {
		m.timerSem.Release(1)
		m.submit(func() { m.CloseOnTimeout(t) })
	})
}

// Resolve handles one decoded child reply: looks up its tracker by
// request id, fills the corresponding slot, and closes the tracker if
// this was its last outstanding reply (spec §4.5 "Reply path"). A
// reply for an unknown or already-closed tracker is silently dropped.
func (m *Manager) Resolve(requestID uint64, typ uint32, payload []byte, latencyMs float64) {
	t, ok := m.byID[requestID]
	if !ok {
		return
	}
	if t.resolve(requestID, typ, payload, latencyMs) {
		if t.timeoutTimer != nil && t.timeoutTimer.Stop() {
			m.timerSem.Release(1) // stopped before firing, so its callback never releases
		}
		m.unregister(t)
		t.close()
	}
}

// CloseOnTimeout is invoked when a tracker's deadline fires before all
// replies arrived (spec §4.5 "Timeout semantics"): still-timed_out
// slots are counted dropped for their target child, then the tracker
// closes like any other. Always runs on the owning reactor (marshaled
// via submit from the armed time.AfterFunc), same as Resolve, so no
// lock is needed against the "last reply closes it first" race below.
func (m *Manager) CloseOnTimeout(t *Tracker) {
	if t.Closed {
		return // already closed by the last reply racing this timer
	}
	m.unregister(t)
	t.close()
}
