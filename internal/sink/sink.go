// Package sink diffs successive routing tables into the decision events
// an out-of-scope eBGP daemon and VPN orchestrator act on (spec §4.4).
package sink

import (
	"github.com/ddarp-project/ddarpd/internal/routing"
	"github.com/ddarp-project/ddarpd/internal/topology"
)

// Tunnel heuristic thresholds (spec §4.4).
const (
	TunnelLatencyMsThreshold = 10.0
	TunnelLossRatioThreshold = 0.01
)

// EventKind enumerates the decision events the sink can emit.
type EventKind int

const (
	EventAdvertiseRoute EventKind = iota
	EventRevoke
	EventRequestTunnel
	EventReleaseTunnel
)

func (k EventKind) String() string {
	switch k {
	case EventAdvertiseRoute:
		return "advertise_route"
	case EventRevoke:
		return "revoke"
	case EventRequestTunnel:
		return "request_tunnel"
	case EventReleaseTunnel:
		return "release_tunnel"
	default:
		return "unknown"
	}
}

// Event is one diffed decision, ready for the seam producer to publish
// and history to persist.
type Event struct {
	Kind      EventKind
	Dest      string
	NextHop   string
	Metric    float64
	LatencyMs float64
	JitterMs  float64
	LossRatio float64
}

// Sink holds the last routing table it diffed against, so repeated calls
// to Diff only emit events for what actually changed.
type Sink struct {
	prevRoutes map[string]routing.RouteEntry
	tunneled   map[string]bool
}

// New creates an empty sink; the first Diff call treats every entry in
// the table as new.
func New() *Sink {
	return &Sink{
		prevRoutes: make(map[string]routing.RouteEntry),
		tunneled:   make(map[string]bool),
	}
}

// Diff compares the current routing table against the last observed one
// and returns the set of events needed to bring downstream consumers up
// to date (spec §4.4):
//   - a destination present now but not before (or whose next hop or
//     metric changed) emits AdvertiseRoute;
//   - a destination present before but gone now emits Revoke;
//   - a next hop whose direct edge from selfID now qualifies as
//     tunnel-worthy (low latency, near-zero loss) emits RequestTunnel;
//     one that no longer qualifies, or that no current route uses as a
//     next hop, emits ReleaseTunnel. The qualifying metric is the direct
//     (selfID, next_hop) edge, not the path's cumulative cost to dest
//     (spec §4.4: "the direct edge metrics").
func (s *Sink) Diff(selfID string, table map[string]routing.RouteEntry, snap topology.Snapshot) []Event {
	var events []Event

	directEdge := make(map[string]topology.EdgeMetrics, len(snap.Edges))
	for _, e := range snap.Edges {
		if e.Src == selfID {
			directEdge[e.Dst] = e.Metrics
		}
	}

	for dest, entry := range table {
		prev, existed := s.prevRoutes[dest]
		if !existed || prev.NextHop != entry.NextHop || prev.Metric != entry.Metric {
			events = append(events, Event{
				Kind:      EventAdvertiseRoute,
				Dest:      dest,
				NextHop:   entry.NextHop,
				Metric:    entry.Metric,
				LatencyMs: entry.LatencyMs,
				JitterMs:  entry.JitterMs,
				LossRatio: entry.LossRatio,
			})
		}
	}

	for dest := range s.prevRoutes {
		if _, stillPresent := table[dest]; !stillPresent {
			events = append(events, Event{Kind: EventRevoke, Dest: dest})
		}
	}

	usedNextHops := make(map[string]bool, len(table))
	for _, entry := range table {
		usedNextHops[entry.NextHop] = true
	}

	for nextHop := range usedNextHops {
		edge, ok := directEdge[nextHop]
		wantsTunnel := ok && edge.LatencyMs < TunnelLatencyMsThreshold && edge.LossRatio < TunnelLossRatioThreshold
		if wantsTunnel && !s.tunneled[nextHop] {
			events = append(events, Event{Kind: EventRequestTunnel, NextHop: nextHop})
			s.tunneled[nextHop] = true
		}
	}
	for nextHop := range s.tunneled {
		edge, ok := directEdge[nextHop]
		wantsTunnel := ok && edge.LatencyMs < TunnelLatencyMsThreshold && edge.LossRatio < TunnelLossRatioThreshold
		if !usedNextHops[nextHop] || !wantsTunnel {
			events = append(events, Event{Kind: EventReleaseTunnel, NextHop: nextHop})
			delete(s.tunneled, nextHop)
		}
	}

	s.prevRoutes = make(map[string]routing.RouteEntry, len(table))
	for dest, entry := range table {
		s.prevRoutes[dest] = entry
	}

	return events
}
