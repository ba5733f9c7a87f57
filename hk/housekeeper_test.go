// Package hk provides a mechanism for registering cleanup/maintenance
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package hk_test

import (
	"sync/atomic"
	"time"

	"github.com/dcperf/oldisim/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("fires a registered callback and reschedules it", func() {
		var n atomic.Int32
		hk.Reg("counter", func(time.Time) time.Duration {
			n.Add(1)
			return time.Millisecond
		}, time.Millisecond)
		defer hk.Unreg("counter")

		Eventually(func() int32 { return n.Load() }, time.Second, 5*time.Millisecond).
			Should(BeNumerically(">=", 3))
	})

	It("drops an entry whose TimeFunc returns UnregInterval", func() {
		var n atomic.Int32
		hk.Reg("once", func(time.Time) time.Duration {
			n.Add(1)
			return hk.UnregInterval
		}, time.Millisecond)

		Eventually(func() int32 { return n.Load() }, time.Second, 5*time.Millisecond).
			Should(Equal(int32(1)))
		Consistently(func() int32 { return n.Load() }, 50*time.Millisecond, 10*time.Millisecond).
			Should(Equal(int32(1)))
	})

	It("stops delivering to an unregistered entry", func() {
		var n atomic.Int32
		hk.Reg("transient", func(time.Time) time.Duration {
			n.Add(1)
			return time.Millisecond
		}, time.Millisecond)

		Eventually(func() int32 { return n.Load() }, time.Second, 5*time.Millisecond).
			Should(BeNumerically(">=", 1))
		hk.Unreg("transient")
		seen := n.Load()
		Consistently(func() int32 { return n.Load() }, 50*time.Millisecond, 10*time.Millisecond).
			Should(Equal(seen))
	})
})
