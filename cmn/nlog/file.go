// Package nlog - aistore-style logger.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	toStderr     bool
	alsoToStderr bool

	logDir  string
	aisrole string
	title   string

	host string
	pid  = os.Getpid()

	nlogs [3]*nlog

	onceInitFiles sync.Once

	pool sync.Pool

	redactFnames = map[string]struct{}{}

	sevText = [...]string{sevInfo: "info", sevWarn: "warning", sevErr: "error"}
)

func init() {
	h, err := os.Hostname()
	if err != nil {
		h = "localhost"
	}
	host = h
	logDir = os.TempDir()
	aisrole = "node"
}

func initFiles() {
	nlogs[sevInfo] = newNlog(sevInfo)
	nlogs[sevErr] = newNlog(sevErr)
	nlogs[sevWarn] = nlogs[sevErr] // warnings fold into the error log, same as Info fold-through in log()

	now := time.Now()
	for _, sev := range []severity{sevInfo, sevErr} {
		nl := nlogs[sev]
		if nl.sev != sev {
			continue // skip the sevWarn alias
		}
		if f, _, err := fcreate(sevText[sev], now); err == nil {
			nl.file = f
			nl.rotate(now)
		} else {
			nl.erred.Store(true)
		}
	}
}

// sname is the stem used for log file names: "oldisim-<role>.<pid>",
// or "oldisim.<pid>" when no role is set.
func sname() string {
	if aisrole == "" {
		return fmt.Sprintf("oldisim.%d", pid)
	}
	return fmt.Sprintf("oldisim-%s.%d", aisrole, pid)
}

func fcreate(tag string, now time.Time) (f *os.File, name string, err error) {
	name, _ = logfname(tag, now)
	full := filepath.Join(logDir, name)
	f, err = os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	return f, name, err
}

func assert(cond bool) {
	if !cond {
		panic("nlog: assertion failed")
	}
}
