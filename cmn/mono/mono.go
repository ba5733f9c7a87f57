//go:build !mono

// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var epoch = time.Now()

// NanoTime returns a monotonic-clock reading in nanoseconds, counted from
// process start. Build with `-tags mono` to use the runtime.nanotime
// linkname instead, which avoids the time.Now() call made here.
func NanoTime() int64 { return int64(time.Since(epoch)) }

// Since returns the elapsed duration since a NanoTime() reading.
func Since(t int64) time.Duration { return time.Duration(NanoTime() - t) }
