// Package routing computes the hysteretic shortest-path routing table
// from a topology snapshot (spec §4.3).
package routing

import (
	"sync"
	"time"

	"github.com/ddarp-project/ddarpd/internal/topology"
)

// Tick cadence and hysteresis parameters (spec §4.3).
const (
	TickInterval         = 5 * time.Second
	RouteRefreshInterval = 30 * time.Second
	RouteExpiryInterval  = 120 * time.Second

	// DefaultHysteresisRatio is the fraction of the installed metric a
	// candidate next hop must come in under to trigger a switch (0.80
	// means at least a 20% improvement), matching the
	// hysteresis_improvement_ratio config default.
	DefaultHysteresisRatio = 0.80
)

// RouteEntry is one row of the routing table: how to reach Dest, and the
// bookkeeping needed to apply hysteresis on the next tick (spec §4.3).
type RouteEntry struct {
	Dest       string
	NextHop    string
	Metric     float64
	LatencyMs  float64
	JitterMs   float64
	LossRatio  float64
	Path       []string
	LastUpdate time.Time
	Generation uint64
}

// Expired reports whether the entry has gone unrefreshed past the expiry
// horizon and should be dropped outright.
func (r RouteEntry) Expired(now time.Time) bool {
	return now.Sub(r.LastUpdate) > RouteExpiryInterval
}

// needsRefresh reports whether the entry is old enough that even an
// unchanged metric should be re-stamped, so consumers can distinguish a
// live route from one about to expire.
func (r RouteEntry) needsRefresh(now time.Time) bool {
	return now.Sub(r.LastUpdate) >= RouteRefreshInterval
}

// Engine holds the current routing table and applies hysteretic updates
// each tick. A single goroutine (Run, or a caller driving Recompute)
// owns writes; reads take a
// snapshot under RLock.
type Engine struct {
	mu              sync.RWMutex
	table           map[string]RouteEntry
	generation      uint64
	self            string
	hysteresisRatio float64
}

// New creates a routing engine for node selfID, the source node of every
// shortest-path computation, using the default hysteresis ratio.
func New(selfID string) *Engine {
	return NewWithRatio(selfID, DefaultHysteresisRatio)
}

// NewWithRatio is New with an explicit hysteresis_improvement_ratio, as
// loaded from config.
func NewWithRatio(selfID string, hysteresisRatio float64) *Engine {
	return &Engine{
		table:           make(map[string]RouteEntry),
		self:            selfID,
		hysteresisRatio: hysteresisRatio,
	}
}

// Recompute runs Dijkstra over the given snapshot and merges the result
// into the table under hysteresis rules (spec §4.3):
//   - a brand new destination is installed immediately;
//   - an existing destination is only re-installed (new next hop or new
//     metric) if the candidate metric comes in strictly under
//     hysteresisRatio times the installed metric; otherwise an entry on
//     the same next hop is re-installed once it is due for refresh, and
//     one on a different next hop once the current entry has expired;
//   - a destination absent from the fresh result is evicted immediately,
//     and any surviving entry is dropped outright once it ages past
//     RouteExpiryInterval regardless of reachability.
func (e *Engine) Recompute(snap topology.Snapshot, now time.Time) {
	candidates := shortestPaths(e.self, snap.UsableEdges(now))

	e.mu.Lock()
	defer e.mu.Unlock()

	for dest, cand := range candidates {
		existing, ok := e.table[dest]
		switch {
		case !ok:
			e.install(dest, cand, now)
		case cand.nextHop == existing.NextHop:
			if existing.needsRefresh(now) || (existing.Metric > 0 && cand.Metric() < existing.Metric*e.hysteresisRatio) {
				e.install(dest, cand, now)
			}
		case existing.Metric > 0 && cand.Metric() < existing.Metric*e.hysteresisRatio:
			e.install(dest, cand, now)
		case existing.Expired(now):
			e.install(dest, cand, now)
		}
	}

	for dest := range e.table {
		if _, stillReachable := candidates[dest]; !stillReachable {
			delete(e.table, dest)
			e.generation++
		}
	}
}

func (e *Engine) install(dest string, cand pathResult, now time.Time) {
	e.table[dest] = RouteEntry{
		Dest:       dest,
		NextHop:    cand.nextHop,
		Metric:     cand.metric,
		LatencyMs:  cand.latencyMs,
		JitterMs:   cand.jitterMs,
		LossRatio:  cand.lossRatio,
		Path:       cand.path,
		LastUpdate: now,
		Generation: e.generation,
	}
	e.generation++
}

func (r pathResult) Metric() float64 { return r.metric }

// Table returns a snapshot of the current routing table, keyed by
// destination.
func (e *Engine) Table() map[string]RouteEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]RouteEntry, len(e.table))
	for k, v := range e.table {
		out[k] = v
	}
	return out
}

// Lookup returns the route entry for dest, if any.
func (e *Engine) Lookup(dest string) (RouteEntry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.table[dest]
	return r, ok
}

// Run drives periodic recomputation against the topology store every
// TickInterval until stop is closed.
func (e *Engine) Run(stop <-chan struct{}, store *topology.Store, now func() time.Time) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Recompute(store.Snapshot(), now())
		}
	}
}
