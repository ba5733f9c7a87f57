// Package orchestrator implements the three role servers (spec §4.6,
// C6): leaf, parent, and driver, each a thin coordination layer over
// reactor.Pool, session.ParentConn/ChildConn, fanout.Manager, and
// statspipe. Grounded on LeafNodeServer.cc/ParentNodeServer.cc/
// DriverNode.cc (original_source) for the per-role accept/connection/
// request-dispatch sequencing, recast from libevent callbacks onto Go
// channels and goroutines per reactor.Reactor's nested-select model.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	"net"
	"time"

	"github.com/dcperf/oldisim/cmn/cos"
	"github.com/dcperf/oldisim/cmn/nlog"
	"github.com/dcperf/oldisim/hk"
	"github.com/dcperf/oldisim/reactor"
	"github.com/dcperf/oldisim/session"
	"github.com/dcperf/oldisim/statspipe"
)

// QueryContext is handed to a leaf's query callback for one inbound
// request (spec §3's QueryContext, simplified to the fields a leaf
// handler needs).
type QueryContext struct {
	Type      uint32
	RequestID uint64
	StartTime uint64
	Payload   []byte

	conn *session.ParentConn
}

// Reply sends the response for this request back to the caller that
// issued it. May be called from a different reactor than the one that
// received the request (work-stealing mode): ParentConn's writer is
// shared/mutex-protected in that case (spec §5 "Shared resources").
func (q *QueryContext) Reply(responseType uint32, processingTimeNanos uint64, payload []byte) error {
	return q.conn.SendResponse(responseType, q.RequestID, q.StartTime, processingTimeNanos, payload)
}

// QueryCallback handles one request of a registered type.
type QueryCallback func(q *QueryContext)

// LeafConfig configures a Leaf server's behavior (spec §4.6 "Leaf
// server").
type LeafConfig struct {
	Addr             string
	NumReactors      int
	Pin              bool
	StartCPU         int
	LoadBalance      bool
	ConnectionsBatch int    // reactors-to-wake rotation period
	RequestsBatch    int    // max tasks drained per steal/self wakeup
	MonitorAddr      string // empty disables monitoring
}

// Leaf is the accept/reactor/query-dispatch server for a leaf node
// (spec §4.6 "Leaf server").
type Leaf struct {
	cfg      LeafConfig
	pool     *reactor.Pool
	handlers map[uint32]QueryCallback
	trackers []*statspipe.Tracker // one per reactor, index == reactor id
	sources  []*statspipe.Source
	coord    *statspipe.Coordinator
	monitor  *statspipe.Monitor
	ln       net.Listener
	stopCh   cos.StopCh

	// work-stealing rotation cursor (spec §4.6 "cursor rotates per
	// connections_batch dispatched")
	wakeCursor int
}

var _ cos.Runner = (*Leaf)(nil)

func NewLeaf(cfg LeafConfig) *Leaf {
	if cfg.ConnectionsBatch <= 0 {
		cfg.ConnectionsBatch = 1
	}
	if cfg.RequestsBatch <= 0 {
		cfg.RequestsBatch = 1
	}
	l := &Leaf{
		cfg:      cfg,
		handlers: make(map[uint32]QueryCallback),
		trackers: make([]*statspipe.Tracker, cfg.NumReactors),
		sources:  make([]*statspipe.Source, cfg.NumReactors),
	}
	for i := range l.trackers {
		l.trackers[i] = statspipe.NewTracker()
		l.sources[i] = statspipe.NewSource()
	}
	l.coord = statspipe.NewCoordinator(l.sources)
	l.pool = reactor.NewPool(cfg.NumReactors, cfg.Pin, cfg.StartCPU, l.onAccept)
	if cfg.MonitorAddr != "" {
		l.monitor = statspipe.NewMonitor(cfg.MonitorAddr, l.coord, statspipe.Topology{Role: "leaf"})
	}
	l.stopCh.Init()
	return l
}

// RegisterQueryCallback registers the handler for one request type
// (spec §4.6).
func (l *Leaf) RegisterQueryCallback(typ uint32, cb QueryCallback) {
	l.handlers[typ] = cb
}

func (l *Leaf) Name() string { return "leaf" }

// Run binds the listener, starts the reactor pool and the housekeeping
// snapshot/merge cycle, and blocks until Stop is called.
func (l *Leaf) Run() error {
	ln, err := net.Listen("tcp4", l.cfg.Addr)
	if err != nil {
		return err
	}
	l.ln = ln
	nlog.Infof("leaf: listening on %s", l.cfg.Addr)

	go l.acceptLoop()
	l.registerSnapshotTimers()

	if l.monitor != nil {
		go func() {
			if err := l.monitor.ListenAndServe(); err != nil {
				nlog.Warningf("leaf: monitor server exited: %v", err)
			}
		}()
	}

	err = l.pool.Run(ctxFromStopCh(&l.stopCh))
	if l.monitor != nil {
		_ = l.monitor.Shutdown()
	}
	return err
}

func (l *Leaf) Stop(err error) {
	nlog.Infof("leaf: stopping, err: %v", err)
	_ = l.ln.Close()
	l.stopCh.Close()
}

func (l *Leaf) acceptLoop() {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return // listener closed on Stop
		}
		l.pool.Dispatch(conn)
	}
}

// onAccept runs on the owning reactor: wraps the connection, installs
// the request handler, and starts its read loop on a dedicated
// goroutine (the reactor itself never blocks on socket reads; see
// spec §4.2's suspension-point rule). reactorID is this reactor's own
// id, supplied by reactor.Reactor.Run — onAccept is the same closure
// shared across every reactor in the pool, so it must not derive the
// id itself from any counter shared across their goroutines.
func (l *Leaf) onAccept(conn net.Conn, reactorID int) {
	self := l.pool.Reactors()[reactorID]

	var pc *session.ParentConn
	batchNum := 0
	pc = session.NewParentConn(conn, l.cfg.LoadBalance, func(requestID uint64, typ uint32, startTime uint64, payload []byte) {
		q := &QueryContext{Type: typ, RequestID: requestID, StartTime: startTime, Payload: payload, conn: pc}
		if l.cfg.LoadBalance {
			l.dispatchLoadBalanced(reactorID, q, batchNum)
			batchNum++
		} else {
			// Marshal onto the owning reactor: this callback runs on
			// pc's reader goroutine, but process touches per-reactor
			// state (l.trackers[reactorID]) that only that reactor's
			// goroutine may mutate (spec §4.2, §5).
			self.Submit(func() { l.process(reactorID, q) })
		}
	}, nil)
	go pc.ReadLoop()
}

// dispatchLoadBalanced implements the work-stealing enqueue/wake
// rotation (spec §4.6 "thread_lb"): the owning reactor enqueues the
// task on its own queue, then on a cadence of ConnectionsBatch wakes
// the next reactor in a fixed rotation to drain and/or steal work.
func (l *Leaf) dispatchLoadBalanced(reactorID int, q *QueryContext, batchNum int) {
	reactors := l.pool.Reactors()
	self := reactors[reactorID]
	task := func() { l.process(reactorID, q) }

	if batchNum == 0 {
		self.Submit(task)
		return
	}
	self.Submit(task)
	if batchNum%l.cfg.ConnectionsBatch == 0 {
		target := l.wakeCursor
		wake := reactors[target]
		wake.SubmitStats(func() { l.steal(target) })
		l.wakeCursor = (l.wakeCursor + len(reactors) - 1) % len(reactors)
	}
}

// steal drains up to RequestsBatch tasks from the waking reactor's own
// queue, then walks sibling queues in rotation (spec §4.6 "steal
// phase").
func (l *Leaf) steal(reactorID int) {
	reactors := l.pool.Reactors()
	n := l.cfg.RequestsBatch
	processed := 0
	for offset := 0; offset < len(reactors) && processed < n; offset++ {
		victim := (reactorID + offset) % len(reactors)
		for _, task := range reactors[victim].Steal(n - processed) {
			task()
			processed++
		}
	}
}

func (l *Leaf) process(reactorID int, q *QueryContext) {
	cb, ok := l.handlers[q.Type]
	if !ok {
		nlog.Warningf("leaf: unregistered request type %d", q.Type)
		return
	}
	cb(q)
	l.trackers[reactorID].Record(q.Type, 0, len(q.Payload))
}

// Coordinator exposes the leaf's merged stats for the SIGINT-time
// stdout summary (spec §6).
func (l *Leaf) Coordinator() *statspipe.Coordinator { return l.coord }

func (l *Leaf) registerSnapshotTimers() {
	for i, r := range l.pool.Reactors() {
		i, r := i, r
		hk.Reg("leaf-stats-"+r.Name(), func(time.Time) time.Duration {
			r.SubmitStats(func() {
				l.sources[i].Push(l.trackers[i].Snapshot())
			})
			return statsWindow
		}, statsWindow)
	}
	hk.Reg("leaf-stats-coordinator", func(time.Time) time.Duration {
		l.coord.Tick()
		if l.monitor != nil {
			l.monitor.RefreshPrometheus()
		}
		return statsWindow
	}, statsWindow)
}
