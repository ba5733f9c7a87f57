// Package wire implements the fixed binary request/response frame format
// (spec §3, §4.1): a small header in network byte order followed by an
// opaque payload. Grounded on the teacher's transport/pdu.go pdu/rpdu
// read/write-offset bookkeeping, generalized from a variable streaming
// object PDU to this protocol's two fixed-size headers.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/dcperf/oldisim/cmn/debug"
)

const (
	// ReqHdrLen is the 24-byte request header: type, request_id,
	// start_time, payload_length.
	ReqHdrLen = 24
	// RespHdrLen is the 32-byte response header: the request header's
	// three echoed fields plus processing_time, then payload_length.
	RespHdrLen = 32

	// MaxPayload bounds a single frame's payload to keep a single bad
	// peer from forcing an unbounded buffer grow.
	MaxPayload = 64 << 20
)

type (
	// ReqHeader is the decoded form of a 24-byte request frame header.
	ReqHeader struct {
		Type          uint32
		RequestID     uint64
		StartTime     uint64 // monotonic nanoseconds, propagated unchanged
		PayloadLength uint32
	}

	// RespHeader is the decoded form of a 32-byte response frame header.
	RespHeader struct {
		Type            uint32
		RequestID       uint64
		StartTime       uint64
		ProcessingTime  uint64 // nanoseconds spent at the replying node
		PayloadLength   uint32
	}
)

// PutReqHeader encodes h into b[:ReqHdrLen] in network byte order.
func PutReqHeader(b []byte, h *ReqHeader) {
	debug.Assert(len(b) >= ReqHdrLen)
	binary.BigEndian.PutUint32(b[0:4], h.Type)
	binary.BigEndian.PutUint64(b[4:12], h.RequestID)
	binary.BigEndian.PutUint64(b[12:20], h.StartTime)
	binary.BigEndian.PutUint32(b[20:24], h.PayloadLength)
}

// ParseReqHeader decodes a 24-byte request header from b.
func ParseReqHeader(b []byte) (h ReqHeader, err error) {
	if len(b) < ReqHdrLen {
		return h, fmt.Errorf("wire: short request header (%d < %d)", len(b), ReqHdrLen)
	}
	h.Type = binary.BigEndian.Uint32(b[0:4])
	h.RequestID = binary.BigEndian.Uint64(b[4:12])
	h.StartTime = binary.BigEndian.Uint64(b[12:20])
	h.PayloadLength = binary.BigEndian.Uint32(b[20:24])
	if h.PayloadLength > MaxPayload {
		return h, fmt.Errorf("wire: payload_length %d exceeds max %d", h.PayloadLength, MaxPayload)
	}
	return h, nil
}

// PutRespHeader encodes h into b[:RespHdrLen] in network byte order.
func PutRespHeader(b []byte, h *RespHeader) {
	debug.Assert(len(b) >= RespHdrLen)
	binary.BigEndian.PutUint32(b[0:4], h.Type)
	binary.BigEndian.PutUint64(b[4:12], h.RequestID)
	binary.BigEndian.PutUint64(b[12:20], h.StartTime)
	binary.BigEndian.PutUint64(b[20:28], h.ProcessingTime)
	binary.BigEndian.PutUint32(b[28:32], h.PayloadLength)
}

// ParseRespHeader decodes a 32-byte response header from b.
func ParseRespHeader(b []byte) (h RespHeader, err error) {
	if len(b) < RespHdrLen {
		return h, fmt.Errorf("wire: short response header (%d < %d)", len(b), RespHdrLen)
	}
	h.Type = binary.BigEndian.Uint32(b[0:4])
	h.RequestID = binary.BigEndian.Uint64(b[4:12])
	h.StartTime = binary.BigEndian.Uint64(b[12:20])
	h.ProcessingTime = binary.BigEndian.Uint64(b[20:28])
	h.PayloadLength = binary.BigEndian.Uint32(b[28:32])
	if h.PayloadLength > MaxPayload {
		return h, fmt.Errorf("wire: payload_length %d exceeds max %d", h.PayloadLength, MaxPayload)
	}
	return h, nil
}

// Frame is a fully decoded request or response: header plus payload
// bytes (owned, deep-copied out of the read buffer by the decoder per
// spec §4.5's "reply payloads are deep-copied").
type Frame struct {
	Req     *ReqHeader
	Resp    *RespHeader
	Payload []byte
}

func (f *Frame) RequestID() uint64 {
	if f.Req != nil {
		return f.Req.RequestID
	}
	return f.Resp.RequestID
}

func (f *Frame) StartTime() uint64 {
	if f.Req != nil {
		return f.Req.StartTime
	}
	return f.Resp.StartTime
}

func (f *Frame) FrameType() uint32 {
	if f.Req != nil {
		return f.Req.Type
	}
	return f.Resp.Type
}
