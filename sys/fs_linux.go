//go:build linux

// Package sys - small /proc and /sys readers used for containerization
// detection and load average, kept local rather than pulled from cmn/cos
// since nothing outside this package needs them.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"
)

var (
	errStop      = errors.New("stop")
	errEmptyFile = errors.New("empty file")
)

const (
	rootProcess     = "/proc/1/cgroup"
	contCPULimit    = "/sys/fs/cgroup/cpu/cpu.cfs_quota_us"
	contCPUPeriod   = "/sys/fs/cgroup/cpu/cpu.cfs_period_us"
	hostLoadAvgPath = "/proc/loadavg"
)

func readLines(path string, cb func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := cb(sc.Text()); err != nil {
			return err
		}
	}
	return sc.Err()
}

func readOneLine(path string) (string, error) {
	var line string
	err := readLines(path, func(l string) error {
		line = l
		return errStop
	})
	if err != nil && err != errStop {
		return "", err
	}
	if line == "" {
		return "", errEmptyFile
	}
	return line, nil
}

func readOneInt64(path string) (int64, error) {
	line, err := readOneLine(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(line), 10, 64)
}

func readOneUint64(path string) (uint64, error) {
	line, err := readOneLine(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(line), 10, 64)
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
