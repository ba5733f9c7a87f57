// Command leaf runs an oldisim leaf node (spec §4.6 "Leaf server"): it
// accepts requests, runs a callback, and replies. The default
// callback registered here is the E1 echo-leaf scenario (spec §8); a
// real workload plugs in its own processing kernel via
// orchestrator.Leaf.RegisterQueryCallback instead (spec §1's "opaque
// user callbacks").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/dcperf/oldisim/config"
	"github.com/dcperf/oldisim/cmn/nlog"
	"github.com/dcperf/oldisim/orchestrator"
	"github.com/dcperf/oldisim/workload"
)

// echoRequestType is the request type the E1 scenario drives (spec §8
// "Driver sends 10,000 × type 7").
const echoRequestType = 7

func main() {
	node, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if node.Role != config.RoleLeaf {
		fmt.Fprintln(os.Stderr, "leaf: pass --server with no --leaf/--parent endpoints")
		os.Exit(1)
	}
	node.Apply()

	cfg := orchestrator.LeafConfig{
		Addr:        fmt.Sprintf(":%d", node.Port),
		NumReactors: node.Threads,
		Pin:         node.Affinity,
		LoadBalance: node.LoadBalance,
	}
	if node.MonitorPort > 0 {
		cfg.MonitorAddr = fmt.Sprintf(":%d", node.MonitorPort)
	}

	leaf := orchestrator.NewLeaf(cfg)
	leaf.RegisterQueryCallback(echoRequestType, func(q *orchestrator.QueryContext) {
		if err := q.Reply(echoRequestType, 0, workload.EchoReply(q.Payload)); err != nil {
			nlog.Warningf("leaf: reply failed: %v", err)
		}
	})

	if err := orchestrator.RunUntilSignal(leaf, leaf.Coordinator()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
