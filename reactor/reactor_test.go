// Package reactor implements the per-thread event loop.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package reactor_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dcperf/oldisim/reactor"
)

func TestReactorServicesTasksInPriorityOrder(t *testing.T) {
	var order []string
	done := make(chan struct{})

	var accepted atomic.Int32
	r := reactor.New(0, 0, false, func(net.Conn, int) { accepted.Add(1) })

	go func() {
		if err := r.Run(); err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	}()

	// Fill the request queue first so it's always ready, then push an
	// accept and a stats task: stats must run before accept, accept
	// before the already-queued request task.
	r.Submit(func() { order = append(order, "request") })
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	r.Accept(c1)
	r.SubmitStats(func() { order = append(order, "stats") })

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(done)
	}()
	<-done

	r.Stop(nil)

	if accepted.Load() != 1 {
		t.Fatalf("got %d accepted conns, want 1", accepted.Load())
	}
	if len(order) == 0 {
		t.Fatal("no tasks ran")
	}
	if order[0] != "stats" {
		t.Fatalf("got first-run task %q, want %q (stats must win priority)", order[0], "stats")
	}
}

func TestPoolDispatchRoundRobins(t *testing.T) {
	var counts [3]atomic.Int32
	onAccept := func(conn net.Conn, reactorID int) {
		counts[reactorID].Add(1)
		_ = conn.Close()
	}
	pool := reactor.NewPool(3, false, 0, onAccept)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = pool.Run(ctx) }()

	for range pool.Reactors() {
		c1, c2 := net.Pipe()
		defer c2.Close()
		pool.Dispatch(c1)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	for i, c := range counts {
		if c.Load() != 1 {
			t.Fatalf("reactor %d accepted %d conns, want 1", i, c.Load())
		}
	}
}
