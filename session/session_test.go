package session_test

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dcperf/oldisim/session"
)

func TestChildParentRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	var (
		mu       sync.Mutex
		gotReq   bool
		reqID    uint64
		reqType  uint32
		payload  []byte
	)
	parent := session.NewParentConn(serverConn, false, func(requestID uint64, typ uint32, _ uint64, p []byte) {
		mu.Lock()
		gotReq, reqID, reqType, payload = true, requestID, typ, append([]byte(nil), p...)
		mu.Unlock()
	}, nil)
	go parent.ReadLoop()

	var (
		replyCh = make(chan struct{}, 1)
		gotResp []byte
	)
	child := session.NewChildConn(clientConn, func(_ uint64, _ uint32, _ uint64, p []byte, _ float64) {
		gotResp = append([]byte(nil), p...)
		replyCh <- struct{}{}
	}, nil)
	go child.ReadLoop()

	child.IssueRequest(7, 42, []byte("hello"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		ok := gotReq
		mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("request never arrived")
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	if reqID != 42 || reqType != 7 || string(payload) != "hello" {
		t.Fatalf("unexpected request: id=%d type=%d payload=%q", reqID, reqType, payload)
	}
	mu.Unlock()

	if err := parent.SendResponse(7, reqID, 0, 1000, []byte("world")); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	select {
	case <-replyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("reply never arrived")
	}
	if string(gotResp) != "world" {
		t.Fatalf("got %q, want %q", gotResp, "world")
	}
	if child.OutstandingCount() != 0 {
		t.Fatalf("outstanding = %d, want 0", child.OutstandingCount())
	}
}
