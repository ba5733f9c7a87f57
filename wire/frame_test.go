// Package wire implements the fixed request/response frame format.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire_test

import (
	"bytes"
	"testing"

	"github.com/dcperf/oldisim/wire"
)

func TestReqHeaderRoundTrip(t *testing.T) {
	h := &wire.ReqHeader{Type: 7, RequestID: 42, StartTime: 123456789, PayloadLength: 5}
	buf := make([]byte, wire.ReqHdrLen)
	wire.PutReqHeader(buf, h)

	got, err := wire.ParseReqHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != *h {
		t.Fatalf("got %+v, want %+v", got, *h)
	}
}

func TestRespHeaderRoundTrip(t *testing.T) {
	h := &wire.RespHeader{Type: 7, RequestID: 42, StartTime: 1, ProcessingTime: 99, PayloadLength: 3}
	buf := make([]byte, wire.RespHdrLen)
	wire.PutRespHeader(buf, h)

	got, err := wire.ParseRespHeader(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != *h {
		t.Fatalf("got %+v, want %+v", got, *h)
	}
}

func TestParseRejectsOversizedPayload(t *testing.T) {
	h := &wire.ReqHeader{Type: 1, RequestID: 1, PayloadLength: wire.MaxPayload + 1}
	buf := make([]byte, wire.ReqHdrLen)
	wire.PutReqHeader(buf, h)
	if _, err := wire.ParseReqHeader(buf); err == nil {
		t.Fatal("expected error for oversized payload_length")
	}
}

func TestWireIsBigEndian(t *testing.T) {
	h := &wire.ReqHeader{Type: 0x01020304}
	buf := make([]byte, wire.ReqHdrLen)
	wire.PutReqHeader(buf, h)
	if !bytes.Equal(buf[0:4], []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("type field not big-endian: % x", buf[0:4])
	}
}
