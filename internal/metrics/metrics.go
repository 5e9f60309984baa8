// Package metrics declares the Prometheus vectors exposed on the admin
// surface's /metrics endpoint (spec §6).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PeerCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddarp_peer_count",
			Help: "Number of peers currently in the registry.",
		},
	)

	TopologyNodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddarp_topology_nodes_total",
			Help: "Number of nodes currently known to the topology store.",
		},
	)

	TopologyEdgesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddarp_topology_edges_total",
			Help: "Number of edges currently known to the topology store.",
		},
	)

	OwlLatencyMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddarp_owl_latency_ms",
			Help: "One-way latency estimate between a src/dst pair.",
		},
		[]string{"src", "dst"},
	)

	OwlJitterMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddarp_owl_jitter_ms",
			Help: "Latency jitter estimate between a src/dst pair.",
		},
		[]string{"src", "dst"},
	)

	OwlPacketLossPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddarp_owl_packet_loss_percent",
			Help: "Observed packet loss between a src/dst pair, as a percentage.",
		},
		[]string{"src", "dst"},
	)

	OwlClockSkewMs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddarp_owl_clock_skew_ms",
			Help: "Estimated clock skew against a peer, derived from probe exchange timestamps.",
		},
		[]string{"peer"},
	)

	NodeHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ddarp_node_health",
			Help: "Liveness of a known node: 1 alive, 0.5 suspect, 0 dead/unknown.",
		},
		[]string{"node_id"},
	)

	ProbeSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_probe_sent_total",
			Help: "Probes sent per peer.",
		},
		[]string{"peer"},
	)

	ProbeRecvTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_probe_recv_total",
			Help: "Authenticated probe datagrams received per peer.",
		},
		[]string{"peer"},
	)

	ProbeAuthFailTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_probe_auth_fail_total",
			Help: "Probe datagrams rejected for a bad authentication tag.",
		},
		[]string{"peer"},
	)

	PacketDecodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_packet_decode_errors_total",
			Help: "Wire packets rejected at decode, by error kind.",
		},
		[]string{"kind"},
	)

	RouteChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ddarp_route_changes_total",
			Help: "Routing table entries installed or revoked across all recompute passes.",
		},
	)

	RouteRecomputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ddarp_route_recompute_duration_seconds",
			Help:    "Time spent in a single routing recomputation pass.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RoutingTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ddarp_routing_table_size",
			Help: "Number of destinations currently in the routing table.",
		},
	)

	SinkEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_sink_events_total",
			Help: "Path-decision events emitted by the sink.",
		},
		[]string{"kind"},
	)

	SeamPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddarp_seam_publish_duration_seconds",
			Help:    "Time spent publishing a decision event to the seam.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"topic"},
	)

	SeamPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ddarp_seam_publish_errors_total",
			Help: "Seam publish failures.",
		},
		[]string{"topic"},
	)

	HistoryWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ddarp_history_write_duration_seconds",
			Help:    "Audit history DB write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"table"},
	)
)

var registerOnce sync.Once

// Register installs every vector into the default Prometheus registry.
// Safe to call more than once; only the first call registers anything.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PeerCount,
			TopologyNodesTotal,
			TopologyEdgesTotal,
			OwlLatencyMs,
			OwlJitterMs,
			OwlPacketLossPercent,
			OwlClockSkewMs,
			NodeHealth,
			ProbeSentTotal,
			ProbeRecvTotal,
			ProbeAuthFailTotal,
			PacketDecodeErrorsTotal,
			RouteChangesTotal,
			RouteRecomputeDuration,
			RoutingTableSize,
			SinkEventsTotal,
			SeamPublishDuration,
			SeamPublishErrorsTotal,
			HistoryWriteDuration,
		)
	})
}
