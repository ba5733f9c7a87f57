// Package orchestrator - Driver is the closed-loop request generator
// (spec §4.6 "Driver node"). Grounded directly on TestDriver.cc/
// TestDriverImpl.h (original_source): the ready/saturated partition
// swap (MarkConnectionReady/MarkConnectionNotReady), the backlog
// counter, and the "generate until delay != 0" loop are all ported
// line-for-line from TestDriverImpl::MakeRequests/SendRequest/
// ResponseCallback, recast onto a reactor.Reactor's single-threaded
// task queue instead of a libevent callback.
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

// ResponseContext is a read-only view of one reply delivered to a
// driver's reply callback (spec §3 "Response context").
type ResponseContext struct {
	Type      uint32
	RequestID uint64
	StartTime uint64
	Payload   []byte
	LatencyMs float64
	TimedOut  bool
}

// ReplyCallback handles one reply of a registered type.
type ReplyCallback func(resp *ResponseContext)

// MakeRequestFunc generates the next request against r. Invoked
// whenever the reactor is ready for one: after the previous
// SendRequest's delay timer fires, or immediately after a reply drains
// the backlog (spec §4.6).
type MakeRequestFunc func(r *DriverReactor)

// kRecomputeQPSPeriod is the rate-controller re-arm cadence (spec §4.6
// "Rate control"), grounded on DriverNodeRank.cc's
// kRecomputeQPSPeriod = 5.
const kRecomputeQPSPeriod = 5 * time.Second

const (
	minDelayUs = 1
	maxDelayUs = 10_000_000 // 10s, a generous ceiling against runaway backoff
)

type driverConnSlot struct {
	id   int
	conn *session.ChildConn
}

// DriverReactor is the per-reactor driver state handed to
// MakeRequestFunc (spec §4.6): the ready/saturated connection
// partition, the id counter, and the backlog count, all exclusively
// owned by this reactor's goroutine.
type DriverReactor struct {
	id  int
	cfg DriverConfig

	conns     []driverConnSlot
	positions []int // connection id -> current slot index
	numReady  int

	nextReqID   uint64
	backlog     int
	lastDelayUs int64

	onMakeRequest MakeRequestFunc
	replyCbs      map[uint32]ReplyCallback
	tracker       *statspipe.Tracker

	reactor *reactor.Reactor

	sentSinceTick  uint64
	delayUs        int64 // current inter-request delay, adjusted by the rate controller
	targetQPS      float64
}

func (r *DriverReactor) ID() int { return r.id }

// DelayMicros reports the current inter-request delay in
// microseconds: 0 for closed-loop/tight-loop generation, or the
// rate controller's last-computed value when a QPS target is set.
// Safe to read only from within MakeRequestFunc, which always runs on
// this reactor's own goroutine.
func (r *DriverReactor) DelayMicros() int64 { return r.delayUs }

// SendRequest issues one request on the current ready connection
// (spec §4.6 "send_request picks the current ready connection, issues,
// and if its outstanding count reaches max_depth swaps it into the
// saturated partition"). nextRequestDelayUs schedules the following
// call to onMakeRequest; zero means "call again immediately, as fast
// as ready connections allow."
func (r *DriverReactor) SendRequest(typ uint32, payload []byte, nextRequestDelayUs int64) {
	debugAssertReady(r)
	slot := &r.conns[0]
	reqID := r.nextReqID
	r.nextReqID++
	slot.conn.IssueRequest(typ, reqID, payload)
	r.sentSinceTick++

	if slot.conn.OutstandingCount() >= r.cfg.MaxDepth {
		r.markNotReady(slot.id)
	}

	r.lastDelayUs = nextRequestDelayUs
	if nextRequestDelayUs > 0 {
		time.AfterFunc(time.Duration(nextRequestDelayUs)*time.Microsecond, func() {
			r.reactor.Submit(r.makeRequests)
		})
	}
}

func debugAssertReady(r *DriverReactor) {
	if r.numReady == 0 {
		nlog.Warningln("driver: SendRequest called with no ready connection")
	}
}

// makeRequests is TestDriverImpl::MakeRequests ported directly: if no
// connection is ready, bump the backlog and stop; otherwise call the
// user generator, looping again only if the last delay was zero (spec
// §4.6 "If delay is zero, requests are generated in a tight loop
// bounded only by ready-connection availability").
func (r *DriverReactor) makeRequests() {
	for {
		if r.numReady == 0 {
			r.backlog++
			return
		}
		r.onMakeRequest(r)
		if r.lastDelayUs != 0 {
			return
		}
	}
}

func (r *DriverReactor) isReady(connID int) bool {
	return r.positions[connID] < r.numReady
}

// markReady swaps connID's slot with the first not-ready slot,
// extending the ready partition by one (TestDriverImpl::MarkConnectionReady).
func (r *DriverReactor) markReady(connID int) {
	pos := r.positions[connID]
	newPos := r.numReady
	r.swap(pos, newPos)
	r.numReady++
}

// markNotReady swaps connID's slot with the last ready slot, shrinking
// the ready partition by one (TestDriverImpl::MarkConnectionNotReady).
func (r *DriverReactor) markNotReady(connID int) {
	pos := r.positions[connID]
	newPos := r.numReady - 1
	r.swap(pos, newPos)
	r.numReady--
}

func (r *DriverReactor) swap(i, j int) {
	r.conns[i], r.conns[j] = r.conns[j], r.conns[i]
	r.positions[r.conns[i].id] = i
	r.positions[r.conns[j].id] = j
}

// onReply is invoked on conn's own reader goroutine, never this
// reactor's, so its entire body — which mutates the ready/saturated
// partition (markReady), the backlog counter, and per-type stats — is
// marshaled onto the reactor via Submit. That is what makes
// DelayMicros' and SendRequest's "always runs on this reactor's own
// goroutine" contract (spec §4.2, §5) actually true.
func (r *DriverReactor) onReply(connID int) session.ReplyFunc {
	return func(requestID uint64, typ uint32, startTime uint64, payload []byte, latencyMs float64) {
		r.reactor.Submit(func() {
			if cb, ok := r.replyCbs[typ]; ok {
				cb(&ResponseContext{Type: typ, RequestID: requestID, StartTime: startTime, Payload: payload, LatencyMs: latencyMs})
			}
			r.tracker.Record(typ, latencyMs, len(payload))

			if !r.isReady(connID) {
				r.markReady(connID)
			}
			if r.backlog > 0 {
				r.makeRequests()
				r.backlog--
			}
		})
	}
}

// onClosed likewise runs on conn's reader goroutine and mutates the
// same partition state, so it is marshaled the same way.
func (r *DriverReactor) onClosed(connID int) func(*session.ChildConn) {
	return func(*session.ChildConn) {
		r.reactor.Submit(func() {
			if r.isReady(connID) {
				r.markNotReady(connID)
			}
		})
	}
}

// recomputeDelay is the rate controller (spec §4.6 "Rate control"):
// per DESIGN.md's Open Question resolution, a proportional controller
// rather than the original's self-referential (observed/target) term —
// converges monotonically for a non-saturated downstream.
func (r *DriverReactor) recomputeDelay() {
	if r.targetQPS <= 0 {
		return
	}
	observedQPS := float64(r.sentSinceTick) / kRecomputeQPSPeriod.Seconds()
	r.sentSinceTick = 0
	if observedQPS <= 0 {
		return
	}
	next := float64(r.delayUs) * (observedQPS / r.targetQPS)
	if next < minDelayUs {
		next = minDelayUs
	}
	if next > maxDelayUs {
		next = maxDelayUs
	}
	r.delayUs = int64(next)
}

// DriverConfig configures a Driver (spec §4.6 "Driver node").
type DriverConfig struct {
	ServerAddr           string
	NumReactors          int
	Pin                  bool
	StartCPU             int
	ConnectionsPerThread int
	MaxDepth             int
	NoDelay              bool
	QPS                  float64 // 0 disables rate control (closed-loop, tight loop)
	MonitorAddr          string
}

// Driver is the closed-loop request-generation node (spec §4.6).
type Driver struct {
	cfg           DriverConfig
	pool          *reactor.Pool
	reactors      []*DriverReactor
	onMakeRequest MakeRequestFunc
	replyCbs      map[uint32]ReplyCallback
	sources       []*statspipe.Source
	coord         *statspipe.Coordinator
	monitor       *statspipe.Monitor
	stopCh        cos.StopCh
}

var _ cos.Runner = (*Driver)(nil)

func NewDriver(cfg DriverConfig) *Driver {
	d := &Driver{
		cfg:      cfg,
		replyCbs: make(map[uint32]ReplyCallback),
		reactors: make([]*DriverReactor, cfg.NumReactors),
		sources:  make([]*statspipe.Source, cfg.NumReactors),
	}
	for i := range d.reactors {
		d.reactors[i] = &DriverReactor{
			id:       i,
			cfg:      cfg,
			tracker:  statspipe.NewTracker(),
			replyCbs: d.replyCbs,
		}
		d.sources[i] = statspipe.NewSource()
	}
	d.coord = statspipe.NewCoordinator(d.sources)
	d.pool = reactor.NewPool(cfg.NumReactors, cfg.Pin, cfg.StartCPU, func(net.Conn, int) {})
	for i, r := range d.pool.Reactors() {
		d.reactors[i].reactor = r
	}
	if cfg.MonitorAddr != "" {
		d.monitor = statspipe.NewMonitor(cfg.MonitorAddr, d.coord, statspipe.Topology{Role: "driver", Children: []string{cfg.ServerAddr}})
	}
	d.stopCh.Init()
	return d
}

// SetMakeRequestCallback installs the per-reactor request generator
// (spec §4.6's make_request callback).
func (d *Driver) SetMakeRequestCallback(fn MakeRequestFunc) {
	d.onMakeRequest = fn
	for _, r := range d.reactors {
		r.onMakeRequest = fn
	}
}

// RegisterReplyCallback registers the handler for one reply type
// (spec §4.6).
func (d *Driver) RegisterReplyCallback(typ uint32, cb ReplyCallback) {
	d.replyCbs[typ] = cb
}

func (d *Driver) Name() string { return "driver" }

// Run dials every reactor's connection pool to the target endpoint,
// kicks off request generation, and blocks until Stop is called.
func (d *Driver) Run() error {
	if d.onMakeRequest == nil {
		nlog.Warningln("driver: no make-request callback registered, nothing to send")
	}
	targetPerThread := 0.0
	if d.cfg.QPS > 0 {
		targetPerThread = d.cfg.QPS / float64(d.cfg.NumReactors)
	}

	for i, r := range d.reactors {
		if err := d.dialReactor(r); err != nil {
			return err
		}
		if targetPerThread > 0 {
			r.targetQPS = targetPerThread
			r.delayUs = int64(1e6 / targetPerThread)
			d.registerRateController(r)
		}
		i := i
		r.reactor.Submit(func() { d.reactors[i].makeRequests() })
	}

	d.registerSnapshotTimers()
	if d.monitor != nil {
		go func() {
			if err := d.monitor.ListenAndServe(); err != nil {
				nlog.Warningf("driver: monitor server exited: %v", err)
			}
		}()
	}

	err := d.pool.Run(ctxFromStopCh(&d.stopCh))
	if d.monitor != nil {
		_ = d.monitor.Shutdown()
	}
	return err
}

func (d *Driver) dialReactor(r *DriverReactor) error {
	n := d.cfg.ConnectionsPerThread
	if n <= 0 {
		n = 1
	}
	r.conns = make([]driverConnSlot, n)
	r.positions = make([]int, n)
	for i := 0; i < n; i++ {
		id := i
		conn, err := session.Dial(d.cfg.ServerAddr, d.cfg.NoDelay, r.onReply(id), r.onClosed(id))
		if err != nil {
			return err
		}
		go conn.ReadLoop()
		r.conns[i] = driverConnSlot{id: id, conn: conn}
		r.positions[i] = i
	}
	r.numReady = n
	return nil
}

func (d *Driver) registerRateController(r *DriverReactor) {
	hk.Reg("driver-qps-"+r.reactor.Name(), func(time.Time) time.Duration {
		r.reactor.Submit(r.recomputeDelay)
		return kRecomputeQPSPeriod
	}, kRecomputeQPSPeriod)
}

func (d *Driver) registerSnapshotTimers() {
	for i, r := range d.reactors {
		i, r := i, r
		hk.Reg("driver-stats-"+r.reactor.Name(), func(time.Time) time.Duration {
			r.reactor.SubmitStats(func() {
				d.sources[i].Push(r.tracker.Snapshot())
			})
			return statsWindow
		}, statsWindow)
	}
	hk.Reg("driver-stats-coordinator", func(time.Time) time.Duration {
		d.coord.Tick()
		if d.monitor != nil {
			d.monitor.RefreshPrometheus()
		}
		return statsWindow
	}, statsWindow)
}

func (d *Driver) Stop(err error) {
	nlog.Infof("driver: stopping, err: %v", err)
	d.stopCh.Close()
}

// Coordinator exposes the driver's merged stats for the SIGINT-time
// stdout summary (spec §6 "prints per-type aggregate stats to stdout").
func (d *Driver) Coordinator() *statspipe.Coordinator { return d.coord }
