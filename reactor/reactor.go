// Package reactor implements the per-thread event loop (spec §4.2): one
// OS thread owns a set of connections, a queue of newly-accepted
// descriptors, and a request-processing task queue, serviced in strict
// priority order (statistics > accept > request). Grounded on the
// teacher's transport/collect.go collector select loop (ticker + ctrl
// channel + stopCh), generalized from "one stream collector" to "N
// per-reactor loops," and on transport/sendmsg.go's workCh-as-task-queue
// idiom for the request-processing channel.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reactor

import (
	"net"
	"runtime"
	"strconv"

	"github.com/dcperf/oldisim/cmn/cos"
	"github.com/dcperf/oldisim/cmn/nlog"
	"github.com/dcperf/oldisim/sys"
)

const (
	acceptQueueLen = 256
	taskQueueLen   = 4096
	statsQueueLen  = 16
)

// AcceptFunc is invoked on the reactor goroutine for every descriptor
// handed to it by Accept, preserving the "single-threaded cooperative
// within a reactor" rule (spec §4.2). reactorID is the accepting
// reactor's own id, so a shared AcceptFunc across a Pool's reactors
// can key its own per-reactor state without an additional counter of
// its own — guessing the id from dispatch order would race across the
// reactors' independent goroutines.
type AcceptFunc func(conn net.Conn, reactorID int)

// Reactor is one event loop instance. Callers construct one per worker
// thread in a Pool; a Reactor never touches another Reactor's state.
type Reactor struct {
	id       int
	cpu      int
	pin      bool
	onAccept AcceptFunc

	acceptCh chan net.Conn
	taskCh   chan func()
	statsCh  chan func()
	stopCh   cos.StopCh

	// work-stealing support (spec §4.6): this reactor's own request
	// queue is the taskCh above; Steal lets sibling reactors pull work
	// out of it when idle, rotating through siblings in a fixed order.
	siblings []*Reactor
}

var _ cos.Runner = (*Reactor)(nil)

// New creates a reactor. cpu is the CPU to pin to if pin is true; id
// names the reactor for logging.
func New(id, cpu int, pin bool, onAccept AcceptFunc) *Reactor {
	r := &Reactor{
		id:       id,
		cpu:      cpu,
		pin:      pin,
		onAccept: onAccept,
		acceptCh: make(chan net.Conn, acceptQueueLen),
		taskCh:   make(chan func(), taskQueueLen),
		statsCh:  make(chan func(), statsQueueLen),
	}
	r.stopCh.Init()
	return r
}

func (r *Reactor) Name() string { return "reactor-" + strconv.Itoa(r.id) }

// SetSiblings installs the pool's full reactor list for work-stealing;
// called once by the owning Pool before Run.
func (r *Reactor) SetSiblings(all []*Reactor) { r.siblings = all }

// Accept hands a freshly accepted descriptor to this reactor; safe to
// call from the acceptor goroutine while Run is executing elsewhere.
func (r *Reactor) Accept(conn net.Conn) { r.acceptCh <- conn }

// Submit enqueues a request-processing task (lowest priority class).
// Safe to call from any goroutine, including this reactor's own (a
// handler re-arming itself after a suspension point).
func (r *Reactor) Submit(task func()) { r.taskCh <- task }

// TrySubmit is Submit's non-blocking form: it reports false instead of
// waiting when the queue is full.
func (r *Reactor) TrySubmit(task func()) bool {
	select {
	case r.taskCh <- task:
		return true
	default:
		return false
	}
}

// SubmitStats enqueues a highest-priority task, used by the hk-driven
// per-reactor stats snapshot timer (spec §4.7).
func (r *Reactor) SubmitStats(task func()) { r.statsCh <- task }

// QueueLen reports the current request-queue depth. The leaf
// work-stealing steal phase does not consult it; it walks sibling
// queues in a fixed rotation.
func (r *Reactor) QueueLen() int { return len(r.taskCh) }

// Steal pulls up to n tasks out of this reactor's own queue for a
// sibling to run; non-blocking.
func (r *Reactor) Steal(n int) []func() {
	out := make([]func(), 0, n)
	for i := 0; i < n; i++ {
		select {
		case t := <-r.taskCh:
			out = append(out, t)
		default:
			return out
		}
	}
	return out
}

// Run is the event loop proper: a nested priority select so that, at
// every iteration, a ready stats task always wins over a ready accept,
// which always wins over a ready request task (spec §4.2's ordering).
func (r *Reactor) Run() error {
	if r.pin {
		runtime.LockOSThread()
		if err := sys.SetThreadAffinity(r.cpu); err != nil {
			nlog.Warningf("%s: failed to set CPU affinity to %d: %v", r.Name(), r.cpu, err)
		}
	}

	for {
		select {
		case task := <-r.statsCh:
			task()
			continue
		default:
		}

		select {
		case task := <-r.statsCh:
			task()
		case conn := <-r.acceptCh:
			r.onAccept(conn, r.id)
		default:
			select {
			case task := <-r.statsCh:
				task()
			case conn := <-r.acceptCh:
				r.onAccept(conn, r.id)
			case task := <-r.taskCh:
				task()
			case <-r.stopCh.Listen():
				return nil
			}
		}
	}
}

func (r *Reactor) Stop(err error) {
	nlog.Infof("Stopping %s, err: %v", r.Name(), err)
	r.stopCh.Close()
}
