// Command parent runs an oldisim parent (aggregator) node (spec §4.6
// "Parent server"): it fans every upstream request out to its
// configured children and synthesizes one upstream response once every
// reply is in or the fanout deadline fires. The default handler
// registered here implements the E2/E3 scenarios (spec §8
// "fanout_all(type 5)").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/dcperf/oldisim/cmn/mono"
	"github.com/dcperf/oldisim/cmn/nlog"
	"github.com/dcperf/oldisim/config"
	"github.com/dcperf/oldisim/fanout"
	"github.com/dcperf/oldisim/orchestrator"
)

// fanoutRequestType is the request type forwarded to every child (spec
// §8 "fanout_all(type 5)").
const fanoutRequestType = 5

func main() {
	node, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if node.Role != config.RoleParent {
		fmt.Fprintln(os.Stderr, "parent: pass one or more --leaf host:port endpoints")
		os.Exit(1)
	}
	node.Apply()

	children := make([]orchestrator.ChildSpec, len(node.Children))
	for i, addr := range node.Children {
		children[i] = orchestrator.ChildSpec{Addr: addr, Connections: node.Connections}
	}

	cfg := orchestrator.ParentConfig{
		Addr:        fmt.Sprintf(":%d", node.Port),
		NumReactors: node.Threads,
		Pin:         node.Affinity,
		Children:    children,
		NoDelay:     true,
	}
	if node.MonitorPort > 0 {
		cfg.MonitorAddr = fmt.Sprintf(":%d", node.MonitorPort)
	}

	parent := orchestrator.NewParent(cfg)
	parent.RegisterQueryCallback(fanoutRequestType, func(q *orchestrator.ParentQueryContext) {
		recvTime := mono.NanoTime()
		q.FanoutAll(fanoutRequestType, q.Payload, func(replies []fanout.Reply) {
			payload := aggregate(replies)
			processingTime := uint64(mono.NanoTime() - recvTime)
			if err := q.Reply(fanoutRequestType, processingTime, payload); err != nil {
				nlog.Warningf("parent: reply failed: %v", err)
			}
		}, node.ReplyTimeout)
	})

	if err := orchestrator.RunUntilSignal(parent, parent.Coordinator()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// aggregate synthesizes the upstream response body from a fanout's
// replies: one byte per slot, 1 for a reply received, 0 for
// timed_out, so the driver side can observe exactly the E3 scenario's
// "how many slots timed out" signal (spec §8) without needing a real
// workload's merge logic.
func aggregate(replies []fanout.Reply) []byte {
	out := make([]byte, len(replies))
	for i, r := range replies {
		if !r.TimedOut {
			out[i] = 1
		}
	}
	return out
}
