// Package fanout implements the fanout reply tracker (spec §3, §4.5):
// per-originating-request state correlating N child replies under an
// optional deadline. Grounded directly on
// original_source/.../oldisim/include/oldisim/FanoutManager.h's
// FanoutRequest/FanoutReply/FanoutReplyTracker struct shapes (kept
// almost 1:1) and FanoutManager.cc's Fanout/ResponseCallback/
// TimeoutCallback/CloseTracker sequencing.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package fanout

import "time"

// Request describes one outgoing child request as part of a fanout.
type Request struct {
	ChildID     uint32
	Type        uint32
	Payload     []byte
}

// Reply is one slot in a Tracker's reply sequence, in dispatch order
// (spec §4.5 "Ordering: slot order is request dispatch order, not reply
// arrival order").
type Reply struct {
	TimedOut  bool
	ChildID   uint32
	Type      uint32
	Payload   []byte // deep-copied out of the receive buffer
	LatencyMs float64
}

func emptyReply() Reply { return Reply{TimedOut: true} }

// DoneFunc is invoked exactly once when a Tracker closes, with a
// read-only view of its final reply sequence.
type DoneFunc func(replies []Reply)

// Tracker is per-originating-request state owning the contiguous
// request-id range [StartID, StartID+NumRequests).
type Tracker struct {
	StartID       uint64
	NumRequests   int
	NumReceived   int
	Closed        bool
	StartTime     time.Time
	Replies       []Reply
	done          DoneFunc
	timeoutTimer  *time.Timer
	onTimeout     func(childID, typ uint32) // per-slot dropped-request hook
}

func newTracker(startID uint64, n int, done DoneFunc) *Tracker {
	replies := make([]Reply, n)
	for i := range replies {
		replies[i] = emptyReply()
	}
	return &Tracker{
		StartID:     startID,
		NumRequests: n,
		Replies:     replies,
		done:        done,
		StartTime:   time.Now(),
	}
}

// resolve fills slot reqID-t.StartID with a received reply, returning
// true if the tracker is now complete and should close.
func (t *Tracker) resolve(reqID uint64, typ uint32, payload []byte, latencyMs float64) (complete bool) {
	idx := int(reqID - t.StartID)
	if idx < 0 || idx >= t.NumRequests {
		return false // stray id, shouldn't happen: caller already validated range
	}
	r := &t.Replies[idx]
	r.TimedOut = false
	r.Type = typ
	r.Payload = payload
	r.LatencyMs = latencyMs
	t.NumReceived++
	return t.NumReceived == t.NumRequests
}

// close marks the tracker closed, fires the user callback exactly once,
// and cancels any armed timeout. Per-slot still-timed-out entries are
// reported to onTimeout before the callback runs, so both the natural
// "all replies received" close and the timeout close go through the
// same dropped-request accounting path.
func (t *Tracker) close() {
	if t.Closed {
		return
	}
	t.Closed = true
	if t.timeoutTimer != nil {
		t.timeoutTimer.Stop()
		t.timeoutTimer = nil
	}
	if t.onTimeout != nil {
		for i := range t.Replies {
			if t.Replies[i].TimedOut {
				t.onTimeout(t.Replies[i].ChildID, t.Replies[i].Type)
			}
		}
	}
	t.done(t.Replies)
}
