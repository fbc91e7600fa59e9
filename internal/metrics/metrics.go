// Package metrics exposes pipeline counters/histograms over Prometheus's
// client library, replacing the teacher's hand-rolled text exporter
// (src/chainadapter/metrics/prometheus.go) with the real client_golang
// registry and HTTP handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/histogram the pipeline reports.
type Metrics struct {
	reg *prometheus.Registry

	RPCCalls         *prometheus.CounterVec
	RPCLatency       *prometheus.HistogramVec
	BlocksIngested   prometheus.Counter
	EntitiesEmitted  prometheus.Gauge
	AddressesEmitted prometheus.Gauge
}

// New creates a Metrics bundle registered in its own private registry —
// deliberately not the global default registry, so multiple pipeline
// instances in one process (e.g. tests) never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		RPCCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bitcoingraph_rpc_calls_total",
			Help: "Total JSON-RPC calls issued to the node, by method and outcome.",
		}, []string{"method", "outcome"}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bitcoingraph_rpc_call_duration_seconds",
			Help:    "JSON-RPC call latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		BlocksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bitcoingraph_blocks_ingested_total",
			Help: "Blocks fully normalized and flushed to the dump.",
		}),
		EntitiesEmitted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bitcoingraph_entities_emitted",
			Help: "Entities emitted by the most recent resolution run.",
		}),
		AddressesEmitted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bitcoingraph_addresses_emitted",
			Help: "Addresses seen by the most recent resolution run.",
		}),
	}

	reg.MustRegister(m.RPCCalls, m.RPCLatency, m.BlocksIngested, m.EntitiesEmitted, m.AddressesEmitted)
	return m
}

// Handler returns an http.Handler serving this bundle's registry in the
// standard Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
