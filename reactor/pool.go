// Package reactor - Pool owns the full set of reactors for one node
// process and their shared lifecycle (spec §5 "Cancellation and
// shutdown": SIGINT breaks every reactor's loop, then joins all of
// them). Grounded on the teacher's use of a join-all-runners shutdown
// sequence; x/sync/errgroup replaces a manual sync.WaitGroup + first-
// error capture.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reactor

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/dcperf/oldisim/cmn/nlog"
)

type Pool struct {
	reactors []*Reactor
	next     int // round-robin cursor for Dispatch
}

// NewPool constructs n reactors, wiring each to its siblings for
// work-stealing and, if pin is true, to a distinct CPU starting at
// startCPU (round-robin, per spec §4.2's "round-robin starting from the
// last-assigned core").
func NewPool(n int, pin bool, startCPU int, onAccept AcceptFunc) *Pool {
	p := &Pool{reactors: make([]*Reactor, n)}
	for i := range n {
		p.reactors[i] = New(i, (startCPU+i)%maxCPU(startCPU, n), pin, onAccept)
	}
	for _, r := range p.reactors {
		r.SetSiblings(p.reactors)
	}
	return p
}

func maxCPU(startCPU, n int) int {
	if startCPU+n > startCPU {
		return startCPU + n
	}
	return n
}

func (p *Pool) Reactors() []*Reactor { return p.reactors }

// Dispatch hands a freshly accepted connection to the next reactor in
// round-robin order (spec §4.6 "pushes each descriptor onto the next
// reactor's incoming queue, round-robin").
func (p *Pool) Dispatch(conn net.Conn) {
	p.reactors[p.next].Accept(conn)
	p.next = (p.next + 1) % len(p.reactors)
}

// Run launches every reactor and blocks until ctx is cancelled or one
// reactor returns an error, then stops all reactors and waits for them
// to exit.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range p.reactors {
		r := r
		g.Go(func() error { return r.Run() })
	}
	// Watcher: on external cancellation or on the first reactor error
	// (which cancels gctx via errgroup), break every reactor's loop so
	// Wait below can return. Mirrors spec §5's "SIGINT ... calls
	// loopbreak on every reactor's event base; reactors drain
	// outstanding events and exit."
	g.Go(func() error {
		<-gctx.Done()
		for _, r := range p.reactors {
			r.Stop(gctx.Err())
		}
		return nil
	})

	err := g.Wait()
	nlog.Infof("reactor pool: %d reactors stopped", len(p.reactors))
	return err
}
