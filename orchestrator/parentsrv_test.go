package orchestrator_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dcperf/oldisim/fanout"
	"github.com/dcperf/oldisim/orchestrator"
	"github.com/dcperf/oldisim/session"
)

func reserveAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// TestParentFanoutAll drives the E2 scenario (spec.md §8): a parent
// fans one upstream request out to two leaves and replies once both
// children have answered.
func TestParentFanoutAll(t *testing.T) {
	leafAddrs := make([]string, 2)
	leaves := make([]*orchestrator.Leaf, 2)
	for i := range leaves {
		leafAddrs[i] = reserveAddr(t)
		leaves[i] = orchestrator.NewLeaf(orchestrator.LeafConfig{Addr: leafAddrs[i], NumReactors: 1})
		leaves[i].RegisterQueryCallback(7, func(q *orchestrator.QueryContext) {
			if err := q.Reply(7, 0, append([]byte(nil), q.Payload...)); err != nil {
				t.Errorf("leaf reply failed: %v", err)
			}
		})
		leaf := leaves[i]
		go func() {
			if err := leaf.Run(); err != nil {
				t.Logf("leaf.Run returned: %v", err)
			}
		}()
		defer leaf.Stop(nil)
	}
	time.Sleep(50 * time.Millisecond)

	children := make([]orchestrator.ChildSpec, len(leafAddrs))
	for i, addr := range leafAddrs {
		children[i] = orchestrator.ChildSpec{Addr: addr, Connections: 1}
	}
	parentAddr := reserveAddr(t)
	parent := orchestrator.NewParent(orchestrator.ParentConfig{
		Addr:        parentAddr,
		NumReactors: 1,
		Children:    children,
		NoDelay:     true,
	})
	parent.RegisterQueryCallback(5, func(q *orchestrator.ParentQueryContext) {
		q.FanoutAll(7, q.Payload, func(replies []fanout.Reply) {
			out := make([]byte, 0, len(replies))
			for _, r := range replies {
				if r.TimedOut {
					out = append(out, 0)
					continue
				}
				out = append(out, r.Payload...)
			}
			if err := q.Reply(5, 0, out); err != nil {
				t.Errorf("parent reply failed: %v", err)
			}
		}, time.Second)
	})

	go func() {
		if err := parent.Run(); err != nil {
			t.Logf("parent.Run returned: %v", err)
		}
	}()
	defer parent.Stop(nil)
	time.Sleep(50 * time.Millisecond)

	var (
		mu    sync.Mutex
		reply []byte
		done  = make(chan struct{})
	)
	conn, err := session.Dial(parentAddr, true, func(requestID uint64, typ uint32, startTime uint64, payload []byte, latencyMs float64) {
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

	conn.IssueRequest(5, 1, []byte("hi"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	mu.Lock()
	got := string(reply)
	mu.Unlock()
	if got != "hihi" {
		t.Fatalf("got reply %q, want %q", got, "hihi")
	}
}

// TestParentFanoutTimeout drives the E3 scenario: one child never
// replies, so the fanout must close on its timeout with that slot
// marked TimedOut rather than hang forever.
func TestParentFanoutTimeout(t *testing.T) {
	deadLeafAddr := reserveAddr(t)
	ln, err := net.Listen("tcp4", deadLeafAddr)
	if err != nil {
		t.Fatalf("failed to listen on reserved addr: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			// Accept but never reply: simulates a stuck/overloaded child.
			go func() {
				buf := make([]byte, 4096)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}()
		}
	}()

	parentAddr := reserveAddr(t)
	parent := orchestrator.NewParent(orchestrator.ParentConfig{
		Addr:        parentAddr,
		NumReactors: 1,
		Children:    []orchestrator.ChildSpec{{Addr: deadLeafAddr, Connections: 1}},
		NoDelay:     true,
	})
	parent.RegisterQueryCallback(5, func(q *orchestrator.ParentQueryContext) {
		q.FanoutAll(7, q.Payload, func(replies []fanout.Reply) {
			timedOut := byte(0)
			if replies[0].TimedOut {
				timedOut = 1
			}
			if err := q.Reply(5, 0, []byte{timedOut}); err != nil {
				t.Errorf("parent reply failed: %v", err)
			}
		}, 100*time.Millisecond)
	})

	go func() {
		if err := parent.Run(); err != nil {
			t.Logf("parent.Run returned: %v", err)
		}
	}()
	defer parent.Stop(nil)
	time.Sleep(50 * time.Millisecond)

	var (
		mu    sync.Mutex
		reply []byte
		done  = make(chan struct{})
	)
	conn, err := session.Dial(parentAddr, true, func(requestID uint64, typ uint32, startTime uint64, payload []byte, latencyMs float64) {
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

	conn.IssueRequest(5, 1, []byte("x"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}

	mu.Lock()
	got := reply
	mu.Unlock()
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got reply %v, want [1] (timed out slot)", got)
	}
}
