package orchestrator_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dcperf/oldisim/orchestrator"
)

// TestDriverBacklogRecovery drives the E4 scenario (spec.md §8): with
// max_depth well below the number of requests issued, the driver must
// saturate its single connection, queue a backlog entry, and keep
// draining it as replies come back in rather than stalling forever.
func TestDriverBacklogRecovery(t *testing.T) {
	leafAddr := reserveAddr(t)
	leaf := orchestrator.NewLeaf(orchestrator.LeafConfig{Addr: leafAddr, NumReactors: 1})
	leaf.RegisterQueryCallback(7, func(q *orchestrator.QueryContext) {
		if err := q.Reply(7, 0, nil); err != nil {
			t.Errorf("leaf reply failed: %v", err)
		}
	})
	go func() {
		if err := leaf.Run(); err != nil {
			t.Logf("leaf.Run returned: %v", err)
		}
	}()
	defer leaf.Stop(nil)
	time.Sleep(50 * time.Millisecond)

	driver := orchestrator.NewDriver(orchestrator.DriverConfig{
		ServerAddr:           leafAddr,
		NumReactors:          1,
		ConnectionsPerThread: 1,
		MaxDepth:             2,
		NoDelay:              true,
	})

	var sent, replied atomic.Int64
	driver.RegisterReplyCallback(7, func(*orchestrator.ResponseContext) {
		replied.Add(1)
	})
	driver.SetMakeRequestCallback(func(r *orchestrator.DriverReactor) {
		sent.Add(1)
		r.SendRequest(7, []byte("x"), 0)
	})

	go func() {
		if err := driver.Run(); err != nil {
			t.Logf("driver.Run returned: %v", err)
		}
	}()
	defer driver.Stop(nil)

	deadline := time.After(2 * time.Second)
	for replied.Load() < 50 {
		select {
		case <-deadline:
			t.Fatalf("only %d replies after 2s (sent %d); backlog drain likely stuck", replied.Load(), sent.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestDriverStopHaltsGeneration checks that Stop actually tears down
// the reactor pool: request generation must not continue (and the
// goroutine running Run must return) once Stop is called.
func TestDriverStopHaltsGeneration(t *testing.T) {
	leafAddr := reserveAddr(t)
	leaf := orchestrator.NewLeaf(orchestrator.LeafConfig{Addr: leafAddr, NumReactors: 1})
	leaf.RegisterQueryCallback(7, func(q *orchestrator.QueryContext) {
		_ = q.Reply(7, 0, nil)
	})
	go leaf.Run()
	defer leaf.Stop(nil)
	time.Sleep(50 * time.Millisecond)

	driver := orchestrator.NewDriver(orchestrator.DriverConfig{
		ServerAddr:           leafAddr,
		NumReactors:          1,
		ConnectionsPerThread: 1,
		MaxDepth:             4,
		NoDelay:              true,
	})
	driver.RegisterReplyCallback(7, func(*orchestrator.ResponseContext) {})
	driver.SetMakeRequestCallback(func(r *orchestrator.DriverReactor) {
		r.SendRequest(7, []byte("x"), 200) // 200us delay keeps Run's goroutine from busy-looping
	})

	runDone := make(chan error, 1)
	go func() { runDone <- driver.Run() }()
	time.Sleep(100 * time.Millisecond)

	driver.Stop(nil)
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("driver.Run did not return after Stop")
	}
}
