package routing

import (
	"container/heap"

	"github.com/ddarp-project/ddarpd/internal/topology"
)

// shortestPaths runs single-source Dijkstra over the usable edges of a
// topology snapshot, breaking ties on next-hop lexicographically so that
// repeated runs over an unchanged graph produce an identical routing
// table (spec §4.3, testable property 4).
func shortestPaths(src string, edges []topology.Edge) map[string]pathResult {
	adj := make(map[string][]topology.Edge)
	for _, e := range edges {
		adj[e.Src] = append(adj[e.Src], e)
	}

	dist := map[string]float64{src: 0}
	nextHop := map[string]string{}
	prev := map[string]string{}
	// cumLatency and survival (product of 1-loss_ratio across the path)
	// track the path's raw physical characteristics separately from the
	// Dijkstra cost metric, so the installed RouteEntry (and the
	// AdvertiseRoute built from it) carries actual latency/loss rather
	// than the weighted cost.
	cumLatency := map[string]float64{src: 0}
	cumJitter := map[string]float64{src: 0}
	survival := map[string]float64{src: 1}
	visited := map[string]bool{}

	pq := &priorityQueue{{node: src, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true

		for _, e := range adj[cur.node] {
			nd := cur.dist + e.Metrics.Weight()
			candidateHop := e.Dst
			if cur.node != src {
				candidateHop = nextHop[cur.node]
			}
			candidateLatency := cumLatency[cur.node] + e.Metrics.LatencyMs
			candidateJitter := cumJitter[cur.node] + e.Metrics.JitterMs
			candidateSurvival := survival[cur.node] * (1 - e.Metrics.LossRatio)

			known, ok := dist[e.Dst]
			switch {
			case !ok || nd < known:
				dist[e.Dst] = nd
				nextHop[e.Dst] = candidateHop
				prev[e.Dst] = cur.node
				cumLatency[e.Dst] = candidateLatency
				cumJitter[e.Dst] = candidateJitter
				survival[e.Dst] = candidateSurvival
				heap.Push(pq, pqItem{node: e.Dst, dist: nd})
			case nd == known && candidateHop < nextHop[e.Dst]:
				// Equal-cost path: prefer the lexicographically smaller
				// next hop so repeated runs are deterministic (spec §4.3).
				nextHop[e.Dst] = candidateHop
				prev[e.Dst] = cur.node
				cumLatency[e.Dst] = candidateLatency
				cumJitter[e.Dst] = candidateJitter
				survival[e.Dst] = candidateSurvival
			}
		}
	}

	out := make(map[string]pathResult, len(dist))
	for dst, d := range dist {
		if dst == src {
			continue
		}
		out[dst] = pathResult{
			metric:    d,
			nextHop:   nextHop[dst],
			latencyMs: cumLatency[dst],
			jitterMs:  cumJitter[dst],
			lossRatio: 1 - survival[dst],
			path:      buildPath(src, dst, prev),
		}
	}
	return out
}

// buildPath walks the predecessor chain from dst back to src and returns
// the hops in traversal order, src first.
func buildPath(src, dst string, prev map[string]string) []string {
	var rev []string
	for node := dst; node != src; {
		rev = append(rev, node)
		p, ok := prev[node]
		if !ok {
			return nil
		}
		node = p
	}
	path := make([]string, 0, len(rev)+1)
	path = append(path, src)
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

type pathResult struct {
	metric    float64
	nextHop   string
	latencyMs float64
	jitterMs  float64
	lossRatio float64
	path      []string
}

type pqItem struct {
	node string
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].node < pq[j].node
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(pqItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
