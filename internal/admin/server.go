// Package admin implements the node's read-only HTTP introspection surface
// and peer add/remove endpoints (spec §6, C7), grounded on the teacher's
// internal/http server.
package admin

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/ddarp-project/ddarpd/internal/registry"
	"github.com/ddarp-project/ddarpd/internal/routing"
	"github.com/ddarp-project/ddarpd/internal/topology"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ClockSkewSource exposes the measurement engine's per-peer skew estimate.
type ClockSkewSource interface {
	ClockSkew(peerID string) (float64, bool)
}

type Server struct {
	srv       *http.Server
	reg       *registry.Registry
	topo      *topology.Store
	route     *routing.Engine
	skew      ClockSkewSource
	nodeID    string
	nodeKind  string
	version   string
	startedAt time.Time
	logger    *zap.Logger
}

// New builds the admin HTTP surface over the node's shared subsystems.
func New(addr, nodeID, nodeKind, version string, reg *registry.Registry, topo *topology.Store, route *routing.Engine, skew ClockSkewSource, logger *zap.Logger) *Server {
	s := &Server{
		reg:       reg,
		topo:      topo,
		route:     route,
		skew:      skew,
		nodeID:    nodeID,
		nodeKind:  nodeKind,
		version:   version,
		startedAt: time.Now(),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /node_info", s.handleNodeInfo)
	mux.HandleFunc("GET /metrics/owl", s.handleMetricsOwl)
	mux.HandleFunc("GET /topology", s.handleTopology)
	mux.HandleFunc("GET /routing_table", s.handleRoutingTable)
	mux.HandleFunc("GET /path/{dest}", s.handlePath)
	mux.HandleFunc("POST /peers", s.handleAddPeer)
	mux.HandleFunc("DELETE /peers/{id}", s.handleRemovePeer)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("admin HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	peers := s.reg.ListPeers()
	status := "healthy"
	for _, p := range peers {
		if p.Liveness == registry.LivenessDead {
			status = "degraded"
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"node_id":    s.nodeID,
		"peer_count": len(peers),
		"uptime_s":   int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node_id":    s.nodeID,
		"kind":       s.nodeKind,
		"version":    s.version,
		"started_at": s.startedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMetricsOwl(w http.ResponseWriter, r *http.Request) {
	snap := s.topo.Snapshot()
	matrix := make(map[string]map[string]any)
	for _, e := range snap.Edges {
		row, ok := matrix[e.Src]
		if !ok {
			row = make(map[string]any)
			matrix[e.Src] = row
		}
		row[e.Dst] = map[string]any{
			"latency_ms":   e.Metrics.LatencyMs,
			"jitter_ms":    e.Metrics.JitterMs,
			"loss_ratio":   e.Metrics.LossRatio,
			"last_updated": e.Metrics.LastUpdatedTs.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics_matrix": matrix})
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap := s.topo.Snapshot()
	edges := make([]map[string]any, 0, len(snap.Edges))
	for _, e := range snap.Edges {
		edges = append(edges, map[string]any{
			"src":          e.Src,
			"dst":          e.Dst,
			"weight":       e.Metrics.Weight(),
			"last_updated": e.Metrics.LastUpdatedTs.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"generation": snap.Generation,
		"nodes":      snap.Nodes,
		"edges":      edges,
	})
}

func (s *Server) handleRoutingTable(w http.ResponseWriter, r *http.Request) {
	table := s.route.Table()
	entries := make([]map[string]any, 0, len(table))
	for _, entry := range table {
		entries = append(entries, map[string]any{
			"destination": entry.Dest,
			"next_hop":    entry.NextHop,
			"path":        entry.Path,
			"cost":        entry.Metric,
			"computed_ts": entry.LastUpdate.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	dest := r.PathValue("dest")

	entry, ok := s.route.Lookup(dest)
	if !ok {
		reason := "no_route"
		snap := s.topo.Snapshot()
		known := false
		for _, n := range snap.Nodes {
			if n == dest {
				known = true
				break
			}
		}
		if !known {
			reason = "unknown_destination"
		}
		writeJSON(w, http.StatusOK, map[string]any{"reachable": false, "reason": reason})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reachable": true,
		"path":      entry.Path,
		"cost":      entry.Metric,
	})
}

type addPeerRequest struct {
	PeerID   string `json:"peer_id"`
	PeerIP   string `json:"peer_ip"`
	PeerType string `json:"peer_type"`
}

func (s *Server) handleAddPeer(w http.ResponseWriter, r *http.Request) {
	var req addPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if req.PeerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "peer_id is required"})
		return
	}
	if req.PeerIP == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "peer_ip is required"})
		return
	}

	kind := registry.KindRegular
	if req.PeerType == "border" {
		kind = registry.KindBorder
	}

	existing, existed := s.reg.Get(req.PeerID)
	secret := ""
	if existed {
		secret = existing.SharedSecret
	}
	s.reg.AddPeer(req.PeerID, req.PeerIP, secret, kind)

	status := http.StatusOK
	if existed && existing.TransportAddress != req.PeerIP {
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"peer_id": req.PeerID})
}

func (s *Server) handleRemovePeer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.reg.RemovePeer(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "peer not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"peer_id": id})
}
