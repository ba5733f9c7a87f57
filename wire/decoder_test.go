// Package wire - decoder state machine.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire_test

import (
	"testing"

	"github.com/dcperf/oldisim/wire"
)

func encodeReq(t *testing.T, h *wire.ReqHeader, payload []byte) []byte {
	t.Helper()
	buf := make([]byte, wire.ReqHdrLen+len(payload))
	wire.PutReqHeader(buf, h)
	copy(buf[wire.ReqHdrLen:], payload)
	return buf
}

func TestDecoderSingleFrame(t *testing.T) {
	d := wire.NewDecoder(false)
	h := &wire.ReqHeader{Type: 1, RequestID: 10, StartTime: 99, PayloadLength: 3}
	frames, err := d.Feed(encodeReq(t, h, []byte("abc")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].RequestID() != 10 || string(frames[0].Payload) != "abc" {
		t.Fatalf("unexpected frame: %+v payload=%q", frames[0].Req, frames[0].Payload)
	}
}

func TestDecoderTwoFramesInOneRead(t *testing.T) {
	d := wire.NewDecoder(false)
	f1 := encodeReq(t, &wire.ReqHeader{Type: 1, RequestID: 1, PayloadLength: 1}, []byte("a"))
	f2 := encodeReq(t, &wire.ReqHeader{Type: 1, RequestID: 2, PayloadLength: 2}, []byte("bc"))
	frames, err := d.Feed(append(f1, f2...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].RequestID() != 1 || frames[1].RequestID() != 2 {
		t.Fatalf("frames out of order: %+v, %+v", frames[0].Req, frames[1].Req)
	}
}

func TestDecoderToleratesByteAtATimeReads(t *testing.T) {
	d := wire.NewDecoder(false)
	raw := encodeReq(t, &wire.ReqHeader{Type: 2, RequestID: 5, PayloadLength: 4}, []byte("data"))

	var got []*wire.Frame
	for _, b := range raw {
		frames, err := d.Feed([]byte{b})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, frames...)
	}
	if len(got) != 1 {
		t.Fatalf("got %d frames, want 1", len(got))
	}
	if string(got[0].Payload) != "data" {
		t.Fatalf("got payload %q, want %q", got[0].Payload, "data")
	}
}

func TestDecoderZeroPayload(t *testing.T) {
	d := wire.NewDecoder(false)
	frames, err := d.Feed(encodeReq(t, &wire.ReqHeader{Type: 1, RequestID: 1, PayloadLength: 0}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frames) != 1 || len(frames[0].Payload) != 0 {
		t.Fatalf("unexpected frames: %+v", frames)
	}
}

func TestDecoderClosedRejectsFeed(t *testing.T) {
	d := wire.NewDecoder(false)
	d.Close()
	if _, err := d.Feed([]byte{0}); err != wire.ErrDecoderClosed {
		t.Fatalf("got err %v, want ErrDecoderClosed", err)
	}
}

func TestDecoderRejectsGarbageHeader(t *testing.T) {
	d := wire.NewDecoder(false)
	garbage := make([]byte, wire.ReqHdrLen)
	for i := range garbage {
		garbage[i] = 0xff
	}
	if _, err := d.Feed(garbage); err == nil {
		t.Fatal("expected error for an implausible payload_length")
	}
	if !d.IsClosed() {
		t.Fatal("decoder should transition to CLOSED on a fatal decode error")
	}
}
