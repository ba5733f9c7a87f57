// Package fanout implements the fanout reply tracker.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package fanout_test

import (
	"time"

	"github.com/dcperf/oldisim/fanout"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordingConn struct {
	issued []uint64
}

func (c *recordingConn) IssueRequest(_ uint32, requestID uint64, _ []byte) {
	c.issued = append(c.issued, requestID)
}

func newPool(childID uint32) (*fanout.ChildPool, *recordingConn) {
	conn := &recordingConn{}
	return &fanout.ChildPool{ChildID: childID, Conns: []fanout.Conn{conn}}, conn
}

// directSubmit runs f immediately; the tests below don't have a real
// reactor goroutine to marshal onto, so inline execution stands in for
// it (Manager only requires that submit eventually runs f).
func directSubmit(f func()) { f() }

var _ = Describe("Manager", func() {
	It("closes the tracker once all replies arrive, preserving dispatch order", func() {
		p0, c0 := newPool(0)
		p1, c1 := newPool(1)
		m := fanout.NewManager([]*fanout.ChildPool{p0, p1}, directSubmit)

		var got []fanout.Reply
		reqs := []fanout.Request{
			{ChildID: 0, Type: 7, Payload: []byte("a")},
			{ChildID: 1, Type: 7, Payload: []byte("b")},
		}
		tr := m.Fanout(reqs, func(replies []fanout.Reply) { got = replies }, 0)

		Expect(c0.issued).To(HaveLen(1))
		Expect(c1.issued).To(HaveLen(1))

		// reply arrives out of dispatch order: slot 1 first, then slot 0
		m.Resolve(tr.StartID+1, 7, []byte("resp-b"), 1.0)
		Expect(got).To(BeNil(), "tracker must not close until every slot is filled")
		m.Resolve(tr.StartID, 7, []byte("resp-a"), 1.0)

		Expect(got).To(HaveLen(2))
		Expect(got[0].Payload).To(Equal([]byte("resp-a")))
		Expect(got[1].Payload).To(Equal([]byte("resp-b")))
		Expect(got[0].TimedOut).To(BeFalse())
		Expect(got[1].TimedOut).To(BeFalse())
	})

	It("drops a late reply for an already-closed tracker", func() {
		p0, _ := newPool(0)
		m := fanout.NewManager([]*fanout.ChildPool{p0}, directSubmit)

		var closedCount int
		reqs := []fanout.Request{{ChildID: 0, Type: 1, Payload: nil}}
		tr := m.Fanout(reqs, func([]fanout.Reply) { closedCount++ }, 0)

		m.Resolve(tr.StartID, 1, []byte("r"), 0.5)
		Expect(closedCount).To(Equal(1))

		// late/duplicate reply for the same id must be silently ignored
		m.Resolve(tr.StartID, 1, []byte("r2"), 0.5)
		Expect(closedCount).To(Equal(1))
	})

	It("closes on timeout, marking unfilled slots timed_out and counting a drop under the request's own type", func() {
		p0, _ := newPool(0)
		var droppedType uint32
		var dropped int
		p0.OnDropped = func(typ uint32) { dropped++; droppedType = typ }
		m := fanout.NewManager([]*fanout.ChildPool{p0}, directSubmit)

		var got []fanout.Reply
		reqs := []fanout.Request{{ChildID: 0, Type: 42, Payload: nil}}
		m.Fanout(reqs, func(replies []fanout.Reply) { got = replies }, 5*time.Millisecond)

		Eventually(func() []fanout.Reply { return got }, time.Second, 5*time.Millisecond).ShouldNot(BeNil())
		Expect(got).To(HaveLen(1))
		Expect(got[0].TimedOut).To(BeTrue())
		Expect(dropped).To(Equal(1))
		Expect(droppedType).To(Equal(uint32(42)), "dropped_requests must be keyed under the request's own type, not 0")
	})

	It("ignores a reply for an unknown request id", func() {
		p0, _ := newPool(0)
		m := fanout.NewManager([]*fanout.ChildPool{p0}, directSubmit)
		Expect(func() { m.Resolve(9999, 1, nil, 0) }).NotTo(Panic())
	})
})
