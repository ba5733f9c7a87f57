// Package cmn provides common constants, types, and utilities shared by the
// node roles (leaf, parent, driver) and by the ambient packages (cmn/nlog,
// cmn/cos, hk).
/*
 * Copyright (c) 2023-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "time"

// Rom ("read-mostly") caches hot-path config knobs that would otherwise
// require a map lookup or mutex per access: the reply-timeout,
// keepalive and verbosity level. Set once at startup by
// config.Node.Apply and never rewritten, so any goroutine may read it
// without synchronization, same tradeoff the teacher's own Rom makes
// for cluster config.
type readMostly struct {
	timeout struct {
		reply     time.Duration // per-request fanout deadline, spec §3 FR.deadline
		keepalive time.Duration // TCP keepalive / session idle timeout
	}
	level      int
	testingEnv bool
}

var Rom readMostly

func (rom *readMostly) init() {
	rom.timeout.reply = 500 * time.Millisecond
	rom.timeout.keepalive = 30 * time.Second
}

// Set applies a freshly loaded node config snapshot. Called once at
// startup after flags are parsed.
func (rom *readMostly) Set(replyTimeout, keepalive time.Duration, verbosity int, testingEnv bool) {
	rom.timeout.reply = replyTimeout
	rom.timeout.keepalive = keepalive
	rom.level = verbosity
	rom.testingEnv = testingEnv
}

func (rom *readMostly) ReplyTimeout() time.Duration { return rom.timeout.reply }
func (rom *readMostly) Keepalive() time.Duration    { return rom.timeout.keepalive }
func (rom *readMostly) TestingEnv() bool            { return rom.testingEnv }

// FastV reports whether verbosity-gated logging at level v should fire,
// without paying for a flag lookup on the hot path.
func (rom *readMostly) FastV(v int) bool { return rom.level >= v }

func init() { Rom.init() }
