// Package node is the composite lifecycle orchestrator (spec §4.8, C8): it
// wires the registry, topology store, measurement engine, routing engine,
// path-decision sink, data-plane seam producer, audit history pipeline and
// admin surface, and drives their periodic ticks.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/ddarp-project/ddarpd/internal/admin"
	"github.com/ddarp-project/ddarpd/internal/config"
	"github.com/ddarp-project/ddarpd/internal/history"
	"github.com/ddarp-project/ddarpd/internal/metrics"
	"github.com/ddarp-project/ddarpd/internal/probe"
	"github.com/ddarp-project/ddarpd/internal/registry"
	"github.com/ddarp-project/ddarpd/internal/routing"
	"github.com/ddarp-project/ddarpd/internal/seam"
	"github.com/ddarp-project/ddarpd/internal/sink"
	"github.com/ddarp-project/ddarpd/internal/topology"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Version is stamped into /node_info; overridden at build time via ldflags
// in a real release pipeline.
var Version = "dev"

// Node owns every subsystem for one participating mesh node.
type Node struct {
	cfg           *config.Config
	logger        *zap.Logger
	reg           *registry.Registry
	topo          *topology.Store
	route         *routing.Engine
	sink          *sink.Sink
	probe         *probe.Engine
	seam          *seam.Producer
	history       *history.Pipeline
	admin         *admin.Server
	historyEvents chan sink.Event
}

// New constructs every subsystem but does not start any goroutines or
// listeners.
func New(cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (*Node, error) {
	reg := registry.New()
	topo := topology.New()
	route := routing.NewWithRatio(cfg.Service.NodeID, cfg.Routing.HysteresisImprovementRatio)

	probeEngine, err := probe.Listen(cfg.Service.ListenAddr, cfg.Service.NodeID, reg, topo, logger.Named("probe"))
	if err != nil {
		return nil, err
	}

	tlsCfg, err := cfg.Seam.BuildTLSConfig()
	if err != nil {
		return nil, err
	}
	seamProducer, err := seam.New(seam.Config{
		Brokers:     cfg.Seam.Brokers,
		ClientID:    cfg.Seam.ClientID,
		RouteTopic:  cfg.Seam.RouteTopic,
		TunnelTopic: cfg.Seam.TunnelTopic,
		TLS:         tlsCfg,
		SASL:        cfg.Seam.BuildSASLMechanism(),
	}, logger.Named("seam"))
	if err != nil {
		return nil, err
	}

	historyWriter := history.NewWriter(pool, logger.Named("history.writer"))
	historyPipeline := history.NewPipeline(
		historyWriter, cfg.Service.NodeID, cfg.History.BatchSize,
		time.Duration(cfg.History.FlushIntervalMs)*time.Millisecond,
		logger.Named("history.pipeline"),
	)

	adminServer := admin.New(
		cfg.Service.AdminListen, cfg.Service.NodeID, cfg.Service.NodeKind, Version,
		reg, topo, route, probeEngine, logger.Named("admin"),
	)

	return &Node{
		cfg:           cfg,
		logger:        logger,
		reg:           reg,
		topo:          topo,
		route:         route,
		sink:          sink.New(),
		probe:         probeEngine,
		seam:          seamProducer,
		history:       historyPipeline,
		admin:         adminServer,
		historyEvents: make(chan sink.Event, 64),
	}, nil
}

// Run starts every subsystem and blocks until ctx is cancelled, then drains
// in-flight work with the configured shutdown grace (spec §4.8).
func (n *Node) Run(ctx context.Context) error {
	if err := n.admin.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); n.probe.Run(ctx) }()
	go func() { defer wg.Done(); n.history.Run(ctx, n.historyEvents) }()
	go func() { defer wg.Done(); n.livenessLoop(ctx) }()

	n.routeLoop(ctx)

	wg.Wait()
	close(n.historyEvents)

	shutdownTimeout := time.Duration(n.cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := n.admin.Shutdown(shutdownCtx); err != nil {
		n.logger.Error("admin server shutdown error", zap.Error(err))
	}
	n.seam.Close()
	if err := n.probe.Close(); err != nil {
		n.logger.Error("probe socket close error", zap.Error(err))
	}

	return nil
}

// routeLoop drives T_route and T_sink together: a recompute pass is
// immediately followed by its sink diff, so a decision for generation G is
// never interleaved with G-1 (spec §5 ordering guarantee).
func (n *Node) routeLoop(ctx context.Context) {
	ticker := time.NewTicker(routing.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.tick()
		}
	}
}

func (n *Node) tick() {
	start := time.Now()
	snap := n.topo.Snapshot()
	n.route.Recompute(snap, start)
	metrics.RouteRecomputeDuration.Observe(time.Since(start).Seconds())

	table := n.route.Table()
	metrics.RoutingTableSize.Set(float64(len(table)))
	metrics.TopologyNodesTotal.Set(float64(len(snap.Nodes)))
	metrics.TopologyEdgesTotal.Set(float64(len(snap.Edges)))
	metrics.PeerCount.Set(float64(len(n.reg.ListPeers())))

	for _, e := range snap.Edges {
		metrics.OwlLatencyMs.WithLabelValues(e.Src, e.Dst).Set(e.Metrics.LatencyMs)
		metrics.OwlJitterMs.WithLabelValues(e.Src, e.Dst).Set(e.Metrics.JitterMs)
		metrics.OwlPacketLossPercent.WithLabelValues(e.Src, e.Dst).Set(e.Metrics.LossRatio * 100)
	}
	for _, p := range n.reg.ListPeers() {
		if skew, ok := n.probe.ClockSkew(p.NodeID); ok {
			metrics.OwlClockSkewMs.WithLabelValues(p.NodeID).Set(skew * 1000)
		}
		metrics.NodeHealth.WithLabelValues(p.NodeID).Set(nodeHealthValue(p.Liveness))
	}

	events := n.sink.Diff(n.cfg.Service.NodeID, table, snap)
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		metrics.SinkEventsTotal.WithLabelValues(ev.Kind.String()).Inc()
		if ev.Kind == sink.EventAdvertiseRoute || ev.Kind == sink.EventRevoke {
			metrics.RouteChangesTotal.Inc()
		}
		n.historyEvents <- ev
	}
	n.seam.Publish(context.Background(), events)
}

// nodeHealthValue maps a peer's liveness state machine onto the
// ddarp_node_health gauge contract (spec §6): alive nodes report full
// health, suspect nodes partial, dead/unknown nodes none.
func nodeHealthValue(l registry.Liveness) float64 {
	switch l {
	case registry.LivenessAlive:
		return 1
	case registry.LivenessSuspect:
		return 0.5
	default:
		return 0
	}
}

// livenessLoop sweeps peer liveness and evicts stale topology edges on the
// routing cadence (spec §4.2, §4.3).
func (n *Node) livenessLoop(ctx context.Context) {
	ticker := time.NewTicker(routing.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			n.reg.SweepLiveness(now)
			n.topo.EvictStale(now)
		}
	}
}

// Registry exposes the peer registry for admin bootstrapping (adding
// initial peers from config, if any, before Run is called).
func (n *Node) Registry() *registry.Registry {
	return n.reg
}
