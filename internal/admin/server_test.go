package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ddarp-project/ddarpd/internal/registry"
	"github.com/ddarp-project/ddarpd/internal/routing"
	"github.com/ddarp-project/ddarpd/internal/topology"
	"go.uber.org/zap"
)

type nopSkew struct{}

func (nopSkew) ClockSkew(string) (float64, bool) { return 0, false }

func newTestServer() (*Server, *registry.Registry, *topology.Store, *routing.Engine) {
	reg := registry.New()
	topo := topology.New()
	route := routing.New("node-a")
	s := New(":0", "node-a", "regular", "test", reg, topo, route, nopSkew{}, zap.NewNop())
	return s, reg, topo, route
}

func TestHandleHealth_NoPeersIsHealthy(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	if body["node_id"] != "node-a" {
		t.Errorf("expected node_id node-a, got %v", body["node_id"])
	}
}

func TestHandleHealth_DeadPeerDegradesStatus(t *testing.T) {
	s, reg, _, _ := newTestServer()
	reg.AddPeer("node-b", "10.0.0.2:8080", "secret", registry.KindRegular)
	reg.Touch("node-b", time.Now().Add(-40*time.Second))
	reg.SweepLiveness(time.Now().Add(-25 * time.Second))
	reg.SweepLiveness(time.Now())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "degraded" {
		t.Errorf("expected degraded status with a dead peer, got %v", body["status"])
	}
}

func TestHandleNodeInfo(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/node_info", nil)
	w := httptest.NewRecorder()
	s.handleNodeInfo(w, req)

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["kind"] != "regular" {
		t.Errorf("expected kind regular, got %v", body["kind"])
	}
}

func TestHandleTopology_ReportsGenerationAndEdges(t *testing.T) {
	s, _, topo, _ := newTestServer()
	topo.UpdateEdge("node-a", "node-b", topology.EdgeMetrics{LatencyMs: 5, LastUpdatedTs: time.Now()})

	req := httptest.NewRequest(http.MethodGet, "/topology", nil)
	w := httptest.NewRecorder()
	s.handleTopology(w, req)

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	edges := body["edges"].([]any)
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if body["generation"] != float64(topo.Generation()) {
		t.Errorf("expected generation %d, got %v", topo.Generation(), body["generation"])
	}
}

func TestHandlePath_UnknownDestination(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/path/node-z", nil)
	req.SetPathValue("dest", "node-z")
	w := httptest.NewRecorder()
	s.handlePath(w, req)

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["reachable"] != false {
		t.Errorf("expected unreachable, got %v", body)
	}
	if body["reason"] != "unknown_destination" {
		t.Errorf("expected unknown_destination, got %v", body["reason"])
	}
}

func TestHandlePath_KnownButNoRoute(t *testing.T) {
	s, _, topo, _ := newTestServer()
	topo.EnsureNode("node-z")

	req := httptest.NewRequest(http.MethodGet, "/path/node-z", nil)
	req.SetPathValue("dest", "node-z")
	w := httptest.NewRecorder()
	s.handlePath(w, req)

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["reason"] != "no_route" {
		t.Errorf("expected no_route, got %v", body["reason"])
	}
}

func TestHandlePath_Reachable(t *testing.T) {
	s, _, topo, route := newTestServer()
	now := time.Now()
	topo.UpdateEdge("node-a", "node-b", topology.EdgeMetrics{LatencyMs: 5, LastUpdatedTs: now})
	route.Recompute(topo.Snapshot(), now)

	req := httptest.NewRequest(http.MethodGet, "/path/node-b", nil)
	req.SetPathValue("dest", "node-b")
	w := httptest.NewRecorder()
	s.handlePath(w, req)

	var body map[string]any
	json.NewDecoder(w.Body).Decode(&body)
	if body["reachable"] != true {
		t.Fatalf("expected reachable, got %v", body)
	}
}

func TestHandleAddPeer_BadBody(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/peers", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	s.handleAddPeer(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleAddPeer_NewPeerSucceeds(t *testing.T) {
	s, reg, _, _ := newTestServer()
	body, _ := json.Marshal(addPeerRequest{PeerID: "node-b", PeerIP: "10.0.0.2:8080", PeerType: "regular"})
	req := httptest.NewRequest(http.MethodPost, "/peers", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleAddPeer(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := reg.Get("node-b"); !ok {
		t.Fatal("expected peer to be added to registry")
	}
}

func TestHandleAddPeer_DuplicateDifferentAddressConflicts(t *testing.T) {
	s, reg, _, _ := newTestServer()
	reg.AddPeer("node-b", "10.0.0.2:8080", "secret", registry.KindRegular)

	body, _ := json.Marshal(addPeerRequest{PeerID: "node-b", PeerIP: "10.0.0.3:8080", PeerType: "regular"})
	req := httptest.NewRequest(http.MethodPost, "/peers", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.handleAddPeer(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestHandleRemovePeer_NotFound(t *testing.T) {
	s, _, _, _ := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/peers/node-z", nil)
	req.SetPathValue("id", "node-z")
	w := httptest.NewRecorder()
	s.handleRemovePeer(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleRemovePeer_Success(t *testing.T) {
	s, reg, _, _ := newTestServer()
	reg.AddPeer("node-b", "10.0.0.2:8080", "secret", registry.KindRegular)

	req := httptest.NewRequest(http.MethodDelete, "/peers/node-b", nil)
	req.SetPathValue("id", "node-b")
	w := httptest.NewRecorder()
	s.handleRemovePeer(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if _, ok := reg.Get("node-b"); ok {
		t.Fatal("expected peer to be removed")
	}
}
