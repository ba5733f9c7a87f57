// Command driver runs an oldisim closed-loop driver (spec §4.6 "Driver
// node") against a single upstream endpoint. The default request
// generator drives the E1/E4 scenarios (spec §8): a fixed echo payload
// at the configured target QPS (or as fast as ready connections allow,
// if --qps is 0).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/dcperf/oldisim/config"
	"github.com/dcperf/oldisim/orchestrator"
	"github.com/dcperf/oldisim/workload"
)

// echoRequestType matches cmd/leaf's registered handler (spec §8 "type 7").
const echoRequestType = 7

func main() {
	node, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if node.Role != config.RoleDriver || len(node.Children) != 1 {
		fmt.Fprintln(os.Stderr, "driver: pass exactly one --parent host:port endpoint")
		os.Exit(1)
	}
	node.Apply()

	cfg := orchestrator.DriverConfig{
		ServerAddr:           node.Children[0],
		NumReactors:          node.Threads,
		Pin:                  node.Affinity,
		ConnectionsPerThread: node.Connections,
		MaxDepth:             node.Depth,
		NoDelay:              true,
		QPS:                  node.QPS,
	}
	if node.MonitorPort > 0 {
		cfg.MonitorAddr = fmt.Sprintf(":%d", node.MonitorPort)
	}

	driver := orchestrator.NewDriver(cfg)
	driver.RegisterReplyCallback(echoRequestType, func(*orchestrator.ResponseContext) {})
	driver.SetMakeRequestCallback(func(r *orchestrator.DriverReactor) {
		r.SendRequest(echoRequestType, workload.EchoPayload, r.DelayMicros())
	})

	if err := orchestrator.RunUntilSignal(driver, driver.Coordinator()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
