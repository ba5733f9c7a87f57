package session

import (
	"net"

	"github.com/dcperf/oldisim/wire"
)

// RequestFunc is invoked on every decoded request frame. The handler
// runs on the connection's ReadLoop goroutine, not on a reactor, and
// must not block (spec §4.2).
type RequestFunc func(requestID uint64, typ uint32, startTime uint64, payload []byte)

// ParentConn is an inbound session: decodes requests from the upstream
// peer (driver or parent) and lets the owner write responses back, in
// any order, as they complete. Grounded on ParentConnection.h's
// SendResponse contract: query_id and start_time are echoed from the
// request that produced the response; response_type and
// processing_time are supplied by the caller.
type ParentConn struct {
	conn     net.Conn
	w        *wire.Writer
	dec      *wire.Decoder
	onReq    RequestFunc
	onClosed func(*ParentConn)
}

// NewParentConn wraps an accepted connection. When shared is true the
// returned connection's writer is protected by a mutex, for leaf
// work-stealing where multiple reactor-local workers may complete
// requests belonging to the same accepted connection concurrently
// (spec §5.1).
func NewParentConn(conn net.Conn, shared bool, onReq RequestFunc, onClosed func(*ParentConn)) *ParentConn {
	var w *wire.Writer
	if shared {
		w = wire.NewSharedWriter(conn)
	} else {
		w = wire.NewWriter(conn)
	}
	return &ParentConn{
		conn:     conn,
		w:        w,
		dec:      wire.NewDecoder(false), // reads request-shaped frames
		onReq:    onReq,
		onClosed: onClosed,
	}
}

// SendResponse writes one response frame. processingTime is the
// server-side nanosecond duration spent handling the request, recorded
// separately from start_time so the child can compute queueing delay
// (spec §3's processing_time field).
func (p *ParentConn) SendResponse(responseType uint32, queryID, startTime, processingTime uint64, data []byte) error {
	h := &wire.RespHeader{
		Type:           responseType,
		RequestID:      queryID,
		StartTime:      startTime,
		ProcessingTime: processingTime,
		PayloadLength:  uint32(len(data)),
	}
	return p.w.WriteResponse(h, data)
}

// ReadLoop blocks reading requests until EOF or a fatal decode error,
// dispatching each to onReq.
func (p *ParentConn) ReadLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			frames, ferr := p.dec.Feed(buf[:n])
			for _, f := range frames {
				h := f.Req
				if p.onReq != nil {
					p.onReq(h.RequestID, h.Type, h.StartTime, f.Payload)
				}
			}
			if ferr != nil {
				break
			}
		}
		if err != nil {
			wire.HandleReadErr(p.dec, err)
			break
		}
	}
	if p.onClosed != nil {
		p.onClosed(p)
	}
}

func (p *ParentConn) Close() error { return p.conn.Close() }
