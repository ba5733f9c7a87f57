//go:build !linux

// Package sys - no-op CPU pinning on platforms without sched_setaffinity.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sys

func SetThreadAffinity(int) error { return nil }

func CanSetAffinity() bool { return false }
