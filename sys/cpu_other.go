//go:build !linux

// Package sys provides methods to read system information
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import "runtime"

func isContainerized() bool { return false }

func containerNumCPU() (int, error) { return runtime.NumCPU(), nil }

func LoadAverage() (LoadAvg, error) { return LoadAvg{}, nil }
