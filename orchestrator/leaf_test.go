package orchestrator_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dcperf/oldisim/orchestrator"
	"github.com/dcperf/oldisim/session"
)

func TestLeafRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	leaf := orchestrator.NewLeaf(orchestrator.LeafConfig{
		Addr:        addr,
		NumReactors: 2,
		LoadBalance: true,
	})
	leaf.RegisterQueryCallback(7, func(q *orchestrator.QueryContext) {
		reply := append([]byte(nil), q.Payload...)
		reply = append(reply, '!')
		if err := q.Reply(7, 0, reply); err != nil {
			t.Errorf("reply failed: %v", err)
		}
	})

	go func() {
		if err := leaf.Run(); err != nil {
			t.Logf("leaf.Run returned: %v", err)
		}
	}()
	defer leaf.Stop(nil)
	time.Sleep(50 * time.Millisecond) // let the listener bind

	var (
		mu    sync.Mutex
		reply []byte
		done  = make(chan struct{})
	)
	conn, err := session.Dial(addr, true, func(requestID uint64, typ uint32, startTime uint64, payload []byte, latencyMs float64) {
		mu.Lock()
		reply = append([]byte(nil), payload...)
		mu.Unlock()
		close(done)
	}, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	go conn.ReadLoop()

	conn.IssueRequest(7, 1, []byte("ping"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	mu.Lock()
	got := string(reply)
	mu.Unlock()
	if got != "ping!" {
		t.Fatalf("got reply %q, want %q", got, "ping!")
	}
}
