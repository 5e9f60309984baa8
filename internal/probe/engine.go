// Package probe implements the measurement engine (spec §4.2): a 1Hz
// authenticated UDP echo probe per peer, feeding a sliding-window latency
// model into the topology store.
package probe

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ddarp-project/ddarpd/internal/metrics"
	"github.com/ddarp-project/ddarpd/internal/registry"
	"github.com/ddarp-project/ddarpd/internal/topology"
	"github.com/ddarp-project/ddarpd/internal/wire"
	"go.uber.org/zap"
)

// ProbeInterval is the fixed 1Hz probe cadence (spec §4.2).
const ProbeInterval = 1 * time.Second

// pairKey identifies an ordered (observer, peer) latency window.
type pairKey struct {
	src, dst string
}

// pendingSend records the local send time for an outstanding probe
// sequence, so the matching echo response's observed RTT can be computed
// without needing clock-synchronized peers.
type pendingSend struct {
	at  time.Time
	seq uint32
}

// Engine runs the probe send/receive loops for one node.
type Engine struct {
	selfID string
	conn   *net.UDPConn
	reg    *registry.Registry
	topo   *topology.Store
	logger *zap.Logger

	mu        sync.Mutex
	windows   map[pairKey]*Window
	pending   map[string]pendingSend // peerID -> most recent outstanding send
	seq       map[string]uint32
	clockSkew map[string]float64 // peerID -> estimated skew, seconds
}

// Listen binds the UDP socket the engine sends and receives probes on.
func Listen(addr string, selfID string, reg *registry.Registry, topo *topology.Store, logger *zap.Logger) (*Engine, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Engine{
		selfID:    selfID,
		conn:      conn,
		reg:       reg,
		topo:      topo,
		logger:    logger,
		windows:   make(map[pairKey]*Window),
		pending:   make(map[string]pendingSend),
		seq:       make(map[string]uint32),
		clockSkew: make(map[string]float64),
	}, nil
}

// Close releases the underlying socket.
func (e *Engine) Close() error {
	return e.conn.Close()
}

// Run drives the send loop, the receive loop and periodic topology
// publication until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		e.sendLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.recvLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.publishLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.gossipLoop(ctx)
	}()

	wg.Wait()
}

func (e *Engine) sendLoop(ctx context.Context) {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, peer := range e.reg.Probeable() {
				e.sendProbe(peer)
			}
		}
	}
}

func (e *Engine) sendProbe(peer registry.Peer) {
	addr, err := net.ResolveUDPAddr("udp", peer.TransportAddress)
	if err != nil {
		e.logger.Warn("probe: bad peer address", zap.String("peer", peer.NodeID), zap.Error(err))
		return
	}

	e.mu.Lock()
	e.seq[peer.NodeID]++
	seq := e.seq[peer.NodeID]
	e.pending[peer.NodeID] = pendingSend{at: time.Now(), seq: seq}
	e.mu.Unlock()

	now := time.Now()
	pkt := &wire.Packet{
		Header: wire.Header{
			Flags:     wire.FlagRequest,
			Sequence:  seq,
			Timestamp: uint32(now.Unix()),
		},
		TLVs: []wire.TLV{
			{Type: wire.TLVOwlMetrics, Value: wire.OwlMetrics{Timestamp: uint32(now.Unix())}.Encode()},
		},
	}
	body, err := wire.Encode(pkt)
	if err != nil {
		e.logger.Error("probe: encode failed", zap.Error(err))
		return
	}
	datagram := sign(peer.SharedSecret, body)

	if _, err := e.conn.WriteToUDP(datagram, addr); err != nil {
		e.logger.Debug("probe: send failed", zap.String("peer", peer.NodeID), zap.Error(err))
		return
	}
	metrics.ProbeSentTotal.WithLabelValues(peer.NodeID).Inc()
}

func (e *Engine) recvLoop(ctx context.Context) {
	buf := make([]byte, wire.MaxPacketSize+macSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		e.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, remote, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		e.handleDatagram(buf[:n], remote)
	}
}

func (e *Engine) handleDatagram(datagram []byte, remote *net.UDPAddr) {
	peer, ok := e.findPeerByAddr(remote)
	if !ok {
		return
	}

	body, ok := verify(peer.SharedSecret, datagram)
	if !ok {
		metrics.ProbeAuthFailTotal.WithLabelValues(peer.NodeID).Inc()
		e.logger.Debug("probe: rejected datagram with bad auth tag", zap.String("peer", peer.NodeID))
		return
	}

	pkt, _, err := wire.Decode(body, wire.DecodeOptions{})
	if err != nil {
		kind := "Unknown"
		if de, ok := err.(*wire.DecodeError); ok {
			kind = de.Kind.String()
		}
		metrics.PacketDecodeErrorsTotal.WithLabelValues(kind).Inc()
		e.logger.Debug("probe: malformed probe packet", zap.String("peer", peer.NodeID), zap.Error(err))
		return
	}

	metrics.ProbeRecvTotal.WithLabelValues(peer.NodeID).Inc()

	now := time.Now()
	e.reg.Touch(peer.NodeID, now)

	for _, t := range pkt.TLVs {
		if t.Type == wire.TLVTopologyUpdate {
			e.handleTopologyUpdate(t.Value)
			return
		}
	}

	if pkt.Header.Flags&wire.FlagRequest != 0 {
		e.echoBack(peer, pkt, remote, now)
		return
	}
	e.handleEcho(peer, pkt, now)
}

// echoBack answers an inbound probe request, stamping our own receive
// time into the response so the original sender can estimate clock skew.
func (e *Engine) echoBack(peer registry.Peer, req *wire.Packet, remote *net.UDPAddr, now time.Time) {
	resp := &wire.Packet{
		Header: wire.Header{
			Sequence:  req.Header.Sequence,
			Timestamp: uint32(now.Unix()),
		},
		TLVs: []wire.TLV{
			{Type: wire.TLVOwlMetrics, Value: wire.OwlMetrics{Timestamp: req.Header.Timestamp}.Encode()},
		},
	}
	body, err := wire.Encode(resp)
	if err != nil {
		e.logger.Error("probe: echo encode failed", zap.Error(err))
		return
	}
	datagram := sign(peer.SharedSecret, body)
	if _, err := e.conn.WriteToUDP(datagram, remote); err != nil {
		e.logger.Debug("probe: echo send failed", zap.String("peer", peer.NodeID), zap.Error(err))
	}
}

// handleEcho matches a response against its outstanding send, records a
// latency sample and updates the clock-skew observable.
func (e *Engine) handleEcho(peer registry.Peer, resp *wire.Packet, now time.Time) {
	e.mu.Lock()
	pending, ok := e.pending[peer.NodeID]
	if ok && pending.seq == resp.Header.Sequence {
		delete(e.pending, peer.NodeID)
	} else {
		ok = false
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	rtt := now.Sub(pending.at)
	latency := rtt / 2

	e.mu.Lock()
	w, ok := e.windows[pairKey{e.selfID, peer.NodeID}]
	if !ok {
		w = &Window{}
		e.windows[pairKey{e.selfID, peer.NodeID}] = w
	}
	w.Add(latency, now, resp.Header.Sequence)

	// Clock skew estimate: responder's wall clock at receipt, minus our
	// send time advanced by the one-way latency estimate (spec supplement:
	// exposed as an observable gauge, never used to correct timestamps).
	responderRecvUnix := float64(resp.Header.Timestamp)
	expectedUnix := float64(pending.at.Add(latency).Unix())
	e.clockSkew[peer.NodeID] = responderRecvUnix - expectedUnix
	e.mu.Unlock()
}

func (e *Engine) findPeerByAddr(remote *net.UDPAddr) (registry.Peer, bool) {
	remoteStr := remote.String()
	for _, p := range e.reg.ListPeers() {
		if p.TransportAddress == remoteStr {
			return p, true
		}
	}
	return registry.Peer{}, false
}

// publishLoop periodically derives window statistics and writes them
// into the topology store as edge metrics.
func (e *Engine) publishLoop(ctx context.Context) {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.publishOnce()
		}
	}
}

func (e *Engine) publishOnce() {
	now := time.Now()
	e.mu.Lock()
	snapshot := make(map[pairKey]Stats, len(e.windows))
	for k, w := range e.windows {
		snapshot[k] = w.Derive()
	}
	e.mu.Unlock()

	for k, stats := range snapshot {
		e.topo.UpdateEdge(k.src, k.dst, topology.EdgeMetrics{
			LatencyMs:     stats.LatencyMs,
			JitterMs:      stats.JitterMs,
			LossRatio:     stats.LossRatio,
			LastUpdatedTs: now,
		})
	}
}

// ClockSkew returns the most recent estimated clock skew, in seconds,
// observed against peerID, or false if no sample has landed yet.
func (e *Engine) ClockSkew(peerID string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.clockSkew[peerID]
	return v, ok
}
