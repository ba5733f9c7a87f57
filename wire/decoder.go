// Package wire - decoder state machine (spec §4.1): WAITING accumulates
// header then payload bytes across any number of partial reads; CLOSED
// is terminal. Grounded on the teacher's transport/pdu.go rpdu, which
// plays the same "accumulate into buf[roff:woff], deliver when
// complete" role for one streaming object PDU; here generalized to a
// sequence of independently-sized frames on the same connection.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"errors"
	"io"

	"github.com/dcperf/oldisim/cmn/cos"
	"github.com/dcperf/oldisim/cmn/debug"
)

// ErrDecoderClosed is returned by Feed once the decoder has observed a
// clean EOF; any further Feed call is a programming error.
var ErrDecoderClosed = errors.New("wire: decoder closed")

type decoderState int

const (
	stateWaiting decoderState = iota
	stateClosed
)

// Decoder turns a byte stream into a sequence of Frames. It is not
// goroutine-safe: exactly one goroutine (the connection's ReadLoop)
// feeds and drains it, per
// spec §4.2's single-threaded-per-connection ownership rule.
type Decoder struct {
	state    decoderState
	isResp   bool // true: parse RespHeader: false: parse ReqHeader
	hdrLen   int
	buf      []byte
	filled   int // bytes valid in buf[:filled]
	wantTotal int // hdrLen + payload_length of the frame currently being accumulated, 0 until header is known
}

// NewDecoder creates a decoder for one direction of one connection.
// isResp selects the 32-byte response header shape; otherwise the
// 24-byte request header shape is used.
func NewDecoder(isResp bool) *Decoder {
	hdrLen := ReqHdrLen
	if isResp {
		hdrLen = RespHdrLen
	}
	return &Decoder{isResp: isResp, hdrLen: hdrLen, buf: make([]byte, hdrLen, 4096)}
}

// Feed appends newly-read bytes and returns every frame that became
// fully buffered as a result, in arrival order. A nil/empty p with a
// prior clean EOF is not required; callers call Close on EOF instead.
func (d *Decoder) Feed(p []byte) (frames []*Frame, err error) {
	if d.state == stateClosed {
		return nil, ErrDecoderClosed
	}
	d.buf = append(d.buf[:d.filled], p...)
	d.filled = len(d.buf)

	for {
		f, ok, ferr := d.tryExtract()
		if ferr != nil {
			d.state = stateClosed
			return frames, ferr
		}
		if !ok {
			return frames, nil
		}
		frames = append(frames, f)
	}
}

// tryExtract attempts to pull one complete frame out of d.buf.
func (d *Decoder) tryExtract() (*Frame, bool, error) {
	if d.filled < d.hdrLen {
		return nil, false, nil
	}
	if d.wantTotal == 0 {
		plen, err := d.peekPayloadLen()
		if err != nil {
			return nil, false, err
		}
		d.wantTotal = d.hdrLen + int(plen)
	}
	if d.filled < d.wantTotal {
		return nil, false, nil
	}

	frame := d.decode(d.buf[:d.wantTotal])

	// drain: shift any bytes belonging to the next frame to the front
	remaining := d.filled - d.wantTotal
	copy(d.buf, d.buf[d.wantTotal:d.filled])
	d.filled = remaining
	d.buf = d.buf[:max(d.hdrLen, remaining)]
	d.wantTotal = 0

	return frame, true, nil
}

func (d *Decoder) peekPayloadLen() (uint32, error) {
	if d.isResp {
		h, err := ParseRespHeader(d.buf[:RespHdrLen])
		return h.PayloadLength, err
	}
	h, err := ParseReqHeader(d.buf[:ReqHdrLen])
	return h.PayloadLength, err
}

func (d *Decoder) decode(raw []byte) *Frame {
	payload := make([]byte, len(raw)-d.hdrLen)
	copy(payload, raw[d.hdrLen:])

	if d.isResp {
		h, err := ParseRespHeader(raw[:RespHdrLen])
		debug.AssertNoErr(err)
		return &Frame{Resp: &h, Payload: payload}
	}
	h, err := ParseReqHeader(raw[:ReqHdrLen])
	debug.AssertNoErr(err)
	return &Frame{Req: &h, Payload: payload}
}

// Close transitions the decoder to CLOSED on a clean peer disconnect
// (spec §4.1 "EOF transitions to CLOSED"). Feed after Close returns
// ErrDecoderClosed; decoding after Close is a programming error.
func (d *Decoder) Close() { d.state = stateClosed }

func (d *Decoder) IsClosed() bool { return d.state == stateClosed }

// HandleReadErr classifies a read error per spec §7: clean EOF closes
// the decoder (the caller invokes its closed-callback); anything else
// is a transient I/O error the caller logs and treats the connection as
// unusable.
func HandleReadErr(d *Decoder, err error) (closed bool) {
	if err == nil {
		return false
	}
	if cos.IsEOF(err) || errors.Is(err, io.EOF) {
		d.Close()
		return true
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
