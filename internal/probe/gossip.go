package probe

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/ddarp-project/ddarpd/internal/registry"
	"github.com/ddarp-project/ddarpd/internal/topology"
	"github.com/ddarp-project/ddarpd/internal/wire"
	"go.uber.org/zap"
)

// GossipInterval is the cadence at which a node floods its own
// directly-measured edges to every peer. A full mesh only gives a node
// direct visibility into the edges it is an endpoint of (spec §3: "(a,b)
// and (b,a) are independent edges with independent samples"); for
// Dijkstra to find multi-hop paths through OTHER nodes' links (spec
// scenario S1), each node needs the rest of the mesh's edges too. This
// floods self-originated edges over the TOPOLOGY_UPDATE TLV (spec §4.1:
// "UTF-8 JSON"), control messages sharing the probe port exactly as
// §4.1 describes.
const GossipInterval = 5 * time.Second

// gossipEdge is the wire JSON shape of one flooded edge measurement.
type gossipEdge struct {
	Src           string  `json:"src"`
	Dst           string  `json:"dst"`
	LatencyMs     float64 `json:"latency_ms"`
	JitterMs      float64 `json:"jitter_ms"`
	LossRatio     float64 `json:"loss_ratio"`
	LastUpdatedTs int64   `json:"last_updated_ts"`
}

func (e *Engine) gossipLoop(ctx context.Context) {
	ticker := time.NewTicker(GossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.gossipOnce()
		}
	}
}

// gossipOnce floods every edge this node directly measured (src == self)
// to every probeable peer.
func (e *Engine) gossipOnce() {
	snap := e.topo.Snapshot()

	entries := make([]gossipEdge, 0, len(snap.Edges))
	for _, edge := range snap.Edges {
		if edge.Src != e.selfID {
			continue
		}
		entries = append(entries, gossipEdge{
			Src:           edge.Src,
			Dst:           edge.Dst,
			LatencyMs:     edge.Metrics.LatencyMs,
			JitterMs:      edge.Metrics.JitterMs,
			LossRatio:     edge.Metrics.LossRatio,
			LastUpdatedTs: edge.Metrics.LastUpdatedTs.Unix(),
		})
	}
	if len(entries) == 0 {
		return
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		e.logger.Error("gossip: encode failed", zap.Error(err))
		return
	}

	for _, peer := range e.reg.Probeable() {
		e.sendGossip(peer, payload)
	}
}

func (e *Engine) sendGossip(peer registry.Peer, payload []byte) {
	addr, err := net.ResolveUDPAddr("udp", peer.TransportAddress)
	if err != nil {
		return
	}

	pkt := &wire.Packet{
		Header: wire.Header{Timestamp: uint32(time.Now().Unix())},
		TLVs:   []wire.TLV{{Type: wire.TLVTopologyUpdate, Value: payload}},
	}
	body, err := wire.Encode(pkt)
	if err != nil {
		e.logger.Error("gossip: packet encode failed", zap.Error(err))
		return
	}

	datagram := sign(peer.SharedSecret, body)
	if _, err := e.conn.WriteToUDP(datagram, addr); err != nil {
		e.logger.Debug("gossip: send failed", zap.String("peer", peer.NodeID), zap.Error(err))
	}
}

// handleTopologyUpdate merges a peer's flooded edges into the local
// topology store. Entries claiming to originate from this node itself
// are dropped: our own direct measurements are authoritative and must
// never be overwritten by a stale echo of themselves.
func (e *Engine) handleTopologyUpdate(value []byte) {
	var entries []gossipEdge
	if err := json.Unmarshal(value, &entries); err != nil {
		e.logger.Debug("gossip: malformed topology_update payload", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.Src == e.selfID || entry.Src == "" || entry.Dst == "" {
			continue
		}
		e.topo.UpdateEdge(entry.Src, entry.Dst, topology.EdgeMetrics{
			LatencyMs:     entry.LatencyMs,
			JitterMs:      entry.JitterMs,
			LossRatio:     entry.LossRatio,
			LastUpdatedTs: time.Unix(entry.LastUpdatedTs, 0),
		})
	}
}
