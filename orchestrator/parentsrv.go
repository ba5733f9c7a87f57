// Package orchestrator - Parent is the accept/reactor/fanout server for
// a parent (aggregator) node (spec §4.6 "Parent server"). Grounded on
// ParentNodeServer.cc/.h (original_source): the accept/reactor
// structure is shared with Leaf, but each reactor additionally owns a
// fanout.Manager bound to the configured children, and upstream
// requests are dispatched to a user handler that issues fanouts rather
// than replying directly.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package orchestrator

import (
	"net"
	"time"

	"github.com/dcperf/oldisim/cmn/cos"
	"github.com/dcperf/oldisim/cmn/nlog"
	"github.com/dcperf/oldisim/fanout"
	"github.com/dcperf/oldisim/hk"
	"github.com/dcperf/oldisim/reactor"
	"github.com/dcperf/oldisim/session"
	"github.com/dcperf/oldisim/statspipe"
)

// ParentQueryContext is handed to a parent's query callback for one
// inbound upstream request. Unlike the leaf's QueryContext, the handler
// typically does not reply directly: it calls Fanout/FanoutAll and
// replies from the done callback once child replies are in (spec §4.5
// "the user continuation synthesizes the upstream response").
type ParentQueryContext struct {
	Type      uint32
	RequestID uint64
	StartTime uint64
	Payload   []byte

	conn    *session.ParentConn
	manager *fanout.Manager
}

// Reply sends the response for this request back to the upstream peer
// that issued it (spec §3 "every query context must produce exactly
// one response").
func (q *ParentQueryContext) Reply(responseType uint32, processingTimeNanos uint64, payload []byte) error {
	return q.conn.SendResponse(responseType, q.RequestID, q.StartTime, processingTimeNanos, payload)
}

// Fanout issues one request per entry in reqs against this reactor's
// fanout manager and registers done to fire exactly once when every
// reply is in or the timeout fires (spec §4.5).
func (q *ParentQueryContext) Fanout(reqs []fanout.Request, done fanout.DoneFunc, timeout time.Duration) *fanout.Tracker {
	return q.manager.Fanout(reqs, done, timeout)
}

// FanoutAll is Fanout with one request per configured child (spec
// §4.5's fanout_all).
func (q *ParentQueryContext) FanoutAll(typ uint32, payload []byte, done fanout.DoneFunc, timeout time.Duration) *fanout.Tracker {
	return q.manager.FanoutAll(typ, payload, done, timeout)
}

// ParentQueryCallback handles one upstream request of a registered
// type, on the reactor that owns the connection it arrived on.
type ParentQueryCallback func(q *ParentQueryContext)

// ChildSpec names one configured child and how many connections to
// open to it per reactor (spec §4.6 "the first user call to
// make_child_connections(child_id, n) creates n outbound connections").
type ChildSpec struct {
	Addr        string
	Connections int
}

// ParentConfig configures a Parent server (spec §4.6 "Parent server").
type ParentConfig struct {
	Addr        string
	NumReactors int
	Pin         bool
	StartCPU    int
	Children    []ChildSpec
	NoDelay     bool
	MonitorAddr string // empty disables monitoring
}

// Parent is the accept/reactor/fanout server for a parent node.
type Parent struct {
	cfg      ParentConfig
	pool     *reactor.Pool
	handlers map[uint32]ParentQueryCallback
	managers []*fanout.Manager // one fanout manager per reactor
	pools    [][]*fanout.ChildPool
	trackers []*statspipe.Tracker
	sources  []*statspipe.Source
	coord    *statspipe.Coordinator
	monitor  *statspipe.Monitor
	ln       net.Listener
	stopCh   cos.StopCh
}

var _ cos.Runner = (*Parent)(nil)

func NewParent(cfg ParentConfig) *Parent {
	p := &Parent{
		cfg:      cfg,
		handlers: make(map[uint32]ParentQueryCallback),
		managers: make([]*fanout.Manager, cfg.NumReactors),
		pools:    make([][]*fanout.ChildPool, cfg.NumReactors),
		trackers: make([]*statspipe.Tracker, cfg.NumReactors),
		sources:  make([]*statspipe.Source, cfg.NumReactors),
	}
	for i := 0; i < cfg.NumReactors; i++ {
		p.trackers[i] = statspipe.NewTracker()
		p.sources[i] = statspipe.NewSource()
	}
	p.coord = statspipe.NewCoordinator(p.sources)
	p.pool = reactor.NewPool(cfg.NumReactors, cfg.Pin, cfg.StartCPU, p.onAccept)
	if cfg.MonitorAddr != "" {
		children := make([]string, len(cfg.Children))
		for i, c := range cfg.Children {
			children[i] = c.Addr
		}
		p.monitor = statspipe.NewMonitor(cfg.MonitorAddr, p.coord, statspipe.Topology{Role: "parent", Children: children})
	}
	p.stopCh.Init()
	return p
}

// RegisterQueryCallback registers the handler for one upstream request
// type (spec §4.6).
func (p *Parent) RegisterQueryCallback(typ uint32, cb ParentQueryCallback) {
	p.handlers[typ] = cb
}

func (p *Parent) Name() string { return "parent" }

// Run binds the listener, makes each reactor's child connections, and
// blocks until Stop is called.
func (p *Parent) Run() error {
	ln, err := net.Listen("tcp4", p.cfg.Addr)
	if err != nil {
		return err
	}
	p.ln = ln
	nlog.Infof("parent: listening on %s, %d children configured", p.cfg.Addr, len(p.cfg.Children))

	if err := p.makeChildConnections(); err != nil {
		_ = p.ln.Close()
		return err
	}

	go p.acceptLoop()
	p.registerSnapshotTimers()

	if p.monitor != nil {
		go func() {
			if err := p.monitor.ListenAndServe(); err != nil {
				nlog.Warningf("parent: monitor server exited: %v", err)
			}
		}()
	}

	err = p.pool.Run(ctxFromStopCh(&p.stopCh))
	if p.monitor != nil {
		_ = p.monitor.Shutdown()
	}
	return err
}

func (p *Parent) Stop(err error) {
	nlog.Infof("parent: stopping, err: %v", err)
	_ = p.ln.Close()
	p.stopCh.Close()
}

// makeChildConnections dials every configured child's connection pool
// once per reactor, each reactor owning the connections it dials for
// their lifetime (spec §4.6 "all owned by this reactor's event loop").
func (p *Parent) makeChildConnections() error {
	for r := 0; r < p.cfg.NumReactors; r++ {
		reactorID := r
		childPools := make([]*fanout.ChildPool, len(p.cfg.Children))
		for childID, spec := range p.cfg.Children {
			childID := uint32(childID)
			cp := &fanout.ChildPool{ChildID: childID}
			cp.OnDropped = func(typ uint32) {
				p.trackers[reactorID].RecordDropped(typ)
			}
			n := spec.Connections
			if n <= 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				conn, err := session.Dial(spec.Addr, p.cfg.NoDelay, p.makeReplyFunc(reactorID), nil)
				if err != nil {
					return err
				}
				go conn.ReadLoop()
				cp.Conns = append(cp.Conns, conn)
			}
			childPools[childID] = cp
		}
		p.pools[reactorID] = childPools
		p.managers[reactorID] = fanout.NewManager(childPools, p.pool.Reactors()[reactorID].Submit)
	}
	return nil
}

// makeReplyFunc binds a reactor's fanout manager to its child
// connections' reply callbacks (spec §4.5 "Reply path"): every decoded
// child reply arrives on that connection's own reader goroutine, so it
// is marshaled onto the owning reactor before touching the manager's
// byID map — the owning reactor is the map's only caller (spec §4.2
// "handler MUST NOT block on another reactor's state", spec §5 "no
// data races by construction").
func (p *Parent) makeReplyFunc(reactorID int) session.ReplyFunc {
	self := p.pool.Reactors()[reactorID]
	return func(requestID uint64, typ uint32, startTime uint64, payload []byte, latencyMs float64) {
		self.Submit(func() {
			p.managers[reactorID].Resolve(requestID, typ, payload, latencyMs)
		})
	}
}

func (p *Parent) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.pool.Dispatch(conn)
	}
}

// onAccept runs on the owning reactor: wraps the connection and wires
// request dispatch to the user handler (no work-stealing on the
// parent role: a fanout's continuation must resume on the reactor
// that owns the originating connection's manager and child pools).
// Decoded requests arrive on conn's own reader goroutine, so dispatch
// is marshaled back onto this reactor before touching any of its
// per-reactor state (manager, tracker) — spec §4.2, §5. reactorID is
// this reactor's own id, supplied by reactor.Reactor.Run: onAccept is
// the same closure shared across every reactor in the pool, so it
// must not derive the id from a counter shared across their
// goroutines.
func (p *Parent) onAccept(conn net.Conn, reactorID int) {
	self := p.pool.Reactors()[reactorID]

	var pc *session.ParentConn
	pc = session.NewParentConn(conn, false, func(requestID uint64, typ uint32, startTime uint64, payload []byte) {
		self.Submit(func() {
			cb, ok := p.handlers[typ]
			if !ok {
				nlog.Warningf("parent: unregistered request type %d", typ)
				return
			}
			q := &ParentQueryContext{
				Type:      typ,
				RequestID: requestID,
				StartTime: startTime,
				Payload:   payload,
				conn:      pc,
				manager:   p.managers[reactorID],
			}
			cb(q)
			p.trackers[reactorID].Record(typ, 0, len(payload))
		})
	}, nil)
	go pc.ReadLoop()
}

// Coordinator exposes the parent's merged stats for the SIGINT-time
// stdout summary (spec §6).
func (p *Parent) Coordinator() *statspipe.Coordinator { return p.coord }

func (p *Parent) registerSnapshotTimers() {
	for i, r := range p.pool.Reactors() {
		i, r := i, r
		hk.Reg("parent-stats-"+r.Name(), func(time.Time) time.Duration {
			r.SubmitStats(func() {
				p.sources[i].Push(p.trackers[i].Snapshot())
			})
			return statsWindow
		}, statsWindow)
	}
	hk.Reg("parent-stats-coordinator", func(time.Time) time.Duration {
		p.coord.Tick()
		if p.monitor != nil {
			p.monitor.RefreshPrometheus()
		}
		return statsWindow
	}, statsWindow)
}
