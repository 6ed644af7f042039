// Package telemetry provides the ambient logging and metrics plumbing
// shared by cmd/meshsim and any embedding host: a zap logger and a set
// of Prometheus collectors tracking election, membership and liveness
// events without the coordinator package needing to know Prometheus
// exists.
//
// Grounded on ryandielhenn-zephyrcache's internal/telemetry/metrics.go
// (custom registry, gauge/counter vecs, promhttp handler) and
// 23skdu-longbow's internal/logging/logger.go (level-parsed zap
// construction).
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors a Coordinator reports into. Bind it
// with coordinator.WithMetrics; a nil *Metrics is valid everywhere it's
// used and simply means "don't instrument".
type Metrics struct {
	Registry *prometheus.Registry

	Elections          prometheus.Counter
	NodeIDAssigns      prometheus.Counter
	NodeIDRejections   *prometheus.CounterVec
	GatewayDisconnects prometheus.Counter
	PingsSent          prometheus.Counter
	TableSize          prometheus.Gauge
}

// NewMetrics builds a fresh, independently-registered Metrics. Using a
// private registry rather than prometheus.DefaultRegisterer keeps a
// meshlink-embedding host's own /metrics endpoint free of surprise
// collectors when it registers more than one Coordinator.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Elections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshlink",
			Name:      "elections_total",
			Help:      "Number of times this device took the gateway role by election or forced start.",
		}),
		NodeIDAssigns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshlink",
			Name:      "node_id_assigns_total",
			Help:      "Number of logical ids a gateway has handed out.",
		}),
		NodeIDRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshlink",
			Name:      "node_id_rejections_total",
			Help:      "Number of NodeIDRequest messages a gateway dropped, by reason.",
		}, []string{"reason"}),
		GatewayDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshlink",
			Name:      "gateway_disconnects_total",
			Help:      "Number of times a node declared its gateway unreachable.",
		}),
		PingsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshlink",
			Name:      "pings_sent_total",
			Help:      "Number of liveness pings a node has sent to its gateway.",
		}),
		TableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "meshlink",
			Name:      "membership_table_size",
			Help:      "Current number of nodes registered with this gateway.",
		}),
	}

	reg.MustRegister(
		m.Elections,
		m.NodeIDAssigns,
		m.NodeIDRejections,
		m.GatewayDisconnects,
		m.PingsSent,
		m.TableSize,
	)
	return m
}

// Handler exposes the collectors over HTTP. Mount it with
// mux.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
