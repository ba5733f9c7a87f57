// Package session implements the two halves of a fanout-tree edge
// (spec §4.3, §4.4): ChildConn is the outbound side owned by a parent
// or driver, ParentConn is the inbound side owned by a leaf or parent.
// Grounded on original_source/.../oldisim/include/oldisim/ChildConnection.h
// (IssueRequest/GetNumOutstandingRequests contract) and
// ParentConnection.h (SendResponse contract), with socket plumbing
// grounded on the teacher's transport package's connection ownership
// model (one reactor owns a connection for its lifetime).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package session

import (
	"net"
	"sync/atomic"

	"github.com/dcperf/oldisim/cmn/mono"
	"github.com/dcperf/oldisim/wire"
)

// ReplyFunc is invoked on every decoded reply frame with the request's
// original start time (propagated unchanged per spec §3) so the caller
// can compute end-to-end latency.
type ReplyFunc func(requestID uint64, typ uint32, startTime uint64, payload []byte, latencyMs float64)

// ClosedFunc is invoked once when the underlying connection transitions
// to CLOSED (spec §4.1).
type ClosedFunc func(c *ChildConn)

// ChildConn is an outbound session: issues requests, demultiplexes
// decoded replies to onReply, and tracks its own outstanding count.
// Does not enforce any depth cap itself (spec §4.3) — the caller
// (fanout.Manager or the driver) decides when it is saturated.
type ChildConn struct {
	conn       net.Conn
	w          *wire.Writer
	dec        *wire.Decoder
	onReply    ReplyFunc
	onClosed   ClosedFunc
	outstanding atomic.Int32
	closed     atomic.Bool // set by the first onClosed call
}

// Dial opens an outbound session to addr with TCP_NODELAY applied if
// nodelay is set (spec §4.3 "Socket options applied on connect").
// Connect failures are fatal per spec: the simulator does not retry.
func Dial(addr string, nodelay bool, onReply ReplyFunc, onClosed ClosedFunc) (*ChildConn, error) {
	conn, err := net.Dial("tcp4", addr)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok && nodelay {
		_ = tc.SetNoDelay(true)
	}
	return NewChildConn(conn, onReply, onClosed), nil
}

func NewChildConn(conn net.Conn, onReply ReplyFunc, onClosed ClosedFunc) *ChildConn {
	return &ChildConn{
		conn:     conn,
		w:        wire.NewWriter(conn),
		dec:      wire.NewDecoder(true), // reads response-shaped frames
		onReply:  onReply,
		onClosed: onClosed,
	}
}

// IssueRequest enqueues a request frame and increments the outstanding
// counter (spec §4.3).
func (c *ChildConn) IssueRequest(typ uint32, requestID uint64, payload []byte) {
	h := &wire.ReqHeader{
		Type:          typ,
		RequestID:     requestID,
		StartTime:     uint64(mono.NanoTime()),
		PayloadLength: uint32(len(payload)),
	}
	c.outstanding.Add(1)
	if err := c.w.WriteRequest(h, payload); err != nil {
		c.handleWriteErr(err)
	}
}

func (c *ChildConn) handleWriteErr(error) {
	c.dec.Close()
	c.notifyClosed()
}

func (c *ChildConn) notifyClosed() {
	if c.onClosed != nil && c.closed.CompareAndSwap(false, true) {
		c.onClosed(c)
	}
}

// OutstandingCount reports the number of requests issued but not yet
// replied to.
func (c *ChildConn) OutstandingCount() int { return int(c.outstanding.Load()) }

// ReadLoop blocks reading from the connection, feeding the decoder and
// invoking onReply for every decoded response, until EOF or a fatal
// decode error. Meant to run on a reader goroutine that hands decoded
// frames to the owning reactor via onReply; onReply itself must not
// block (spec §4.2 "handler MUST NOT block on another reactor's
// state").
func (c *ChildConn) ReadLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			frames, ferr := c.dec.Feed(buf[:n])
			for _, f := range frames {
				c.deliver(f)
			}
			if ferr != nil {
				break
			}
		}
		if err != nil {
			if wire.HandleReadErr(c.dec, err) {
				break
			}
			break
		}
	}
	c.notifyClosed()
}

func (c *ChildConn) deliver(f *wire.Frame) {
	c.outstanding.Add(-1)
	h := f.Resp
	now := mono.NanoTime()
	latencyMs := float64(now-int64(h.StartTime)) / 1e6
	if c.onReply != nil {
		c.onReply(h.RequestID, h.Type, h.StartTime, f.Payload, latencyMs)
	}
}

func (c *ChildConn) Close() error { return c.conn.Close() }
