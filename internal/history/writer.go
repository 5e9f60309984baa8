// Package history persists an append-only audit trail of path-decision
// events to Postgres. It is observability only: the authoritative
// routing/topology state stays in-memory and is re-learned on restart.
package history

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/ddarp-project/ddarpd/internal/metrics"
	"github.com/ddarp-project/ddarpd/internal/sink"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Writer batches sink events into ddarp_route_history / ddarp_tunnel_history.
type Writer struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewWriter builds a history writer over an existing connection pool.
func NewWriter(pool *pgxpool.Pool, logger *zap.Logger) *Writer {
	return &Writer{pool: pool, logger: logger}
}

// eventID derives a dedup key for an event from the node, kind,
// destination, next hop and the write time truncated to the second, so
// the same decision written twice within one second gets the same key.
func eventID(nodeID string, ev sink.Event, at time.Time) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d", nodeID, ev.Kind, ev.Dest, ev.NextHop, at.Truncate(time.Second).Unix())
	sum := h.Sum(nil)
	return sum
}

const insertRouteSQL = `
	INSERT INTO ddarp_route_history (event_id, event_time, node_id, kind, dest, next_hop, metric)
	VALUES ($1, date_trunc('day', now() AT TIME ZONE 'UTC')::timestamptz, $2, $3, $4, $5, $6)
	ON CONFLICT (event_id, event_time) DO NOTHING`

// insertTunnelSQL's dest column is nullable: tunnel events are keyed by
// next hop, not destination (spec §4.4), and carry no dest.
const insertTunnelSQL = `
	INSERT INTO ddarp_tunnel_history (event_id, event_time, node_id, kind, dest, next_hop)
	VALUES ($1, date_trunc('day', now() AT TIME ZONE 'UTC')::timestamptz, $2, $3, $4, $5)
	ON CONFLICT (event_id, event_time) DO NOTHING`

// FlushBatch writes a batch of decision events produced by the sink for
// nodeID, splitting route vs tunnel events into their respective tables.
func (w *Writer) FlushBatch(ctx context.Context, nodeID string, events []sink.Event) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	now := time.Now()

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	tables := make([]string, 0, len(events))
	for _, ev := range events {
		id := eventID(nodeID, ev, now)
		switch ev.Kind {
		case sink.EventAdvertiseRoute, sink.EventRevoke:
			batch.Queue(insertRouteSQL, id, nodeID, ev.Kind.String(), ev.Dest, nilIfEmpty(ev.NextHop), ev.Metric)
			tables = append(tables, "ddarp_route_history")
		case sink.EventRequestTunnel, sink.EventReleaseTunnel:
			batch.Queue(insertTunnelSQL, id, nodeID, ev.Kind.String(), nilIfEmpty(ev.Dest), ev.NextHop)
			tables = append(tables, "ddarp_tunnel_history")
		}
	}

	results := tx.SendBatch(ctx, batch)
	for i := range tables {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("history: insert[%d]: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("history: closing batch results: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("history: commit tx: %w", err)
	}

	dur := time.Since(start).Seconds()
	metrics.HistoryWriteDuration.WithLabelValues("ddarp_route_history").Observe(dur)

	return nil
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
