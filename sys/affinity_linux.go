//go:build linux

// Package sys - reactor thread pinning, used when the node is started
// with --affinity so that reactor i is bound to CPU i and the kernel
// never migrates it mid-run.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"golang.org/x/sys/unix"
)

// SetThreadAffinity pins the calling OS thread to a single CPU. Callers
// must have already locked the goroutine to its OS thread via
// runtime.LockOSThread before calling this.
func SetThreadAffinity(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu % NumCPU())
	return unix.SchedSetaffinity(0, &set)
}

// CanSetAffinity reports whether CPU pinning is available on this platform.
func CanSetAffinity() bool { return true }
