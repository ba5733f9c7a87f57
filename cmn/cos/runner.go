// Package cos — shared lifecycle primitives for long-lived goroutines
// (reactors, the housekeeper, role servers).
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import "sync"

// Runner is implemented by every goroutine-owning component that the
// top-level node lifecycle (SIGINT handling, §5 "Cancellation and
// shutdown") needs to start and stop uniformly: reactors, the hk
// housekeeper, and the three role servers. The stats coordinator is
// not a Runner; it is driven by an hk timer.
type Runner interface {
	Name() string
	Run() error
	Stop(error)
}

// StopCh is a one-shot broadcast-close signal: any number of goroutines
// may select on Listen() and all wake up when Close() is called exactly
// once. Grounded on the collector's stopCh usage in the teacher's
// transport/collect.go.
type StopCh struct {
	ch   chan struct{}
	once sync.Once
}

func (s *StopCh) Init() { s.ch = make(chan struct{}) }

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() { s.once.Do(func() { close(s.ch) }) }
