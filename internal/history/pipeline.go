package history

import (
	"context"
	"time"

	"github.com/ddarp-project/ddarpd/internal/sink"
	"go.uber.org/zap"
)

// flusher is the subset of *Writer the pipeline depends on, so tests can
// substitute an in-memory stub instead of a live Postgres pool.
type flusher interface {
	FlushBatch(ctx context.Context, nodeID string, events []sink.Event) error
}

// Pipeline batches sink events off a channel and flushes them to the
// writer on a size or time trigger, draining on shutdown before
// returning — the same batch/ticker/drain shape as the teacher's Kafka
// consumer pipelines, adapted to a plain event channel since DDARP's
// decision stream has no broker offsets to commit.
type Pipeline struct {
	writer        flusher
	nodeID        string
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
}

// NewPipeline builds a batching pipeline over writer for nodeID's decision
// events.
func NewPipeline(writer flusher, nodeID string, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		writer:        writer,
		nodeID:        nodeID,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Run drains events until ctx is cancelled or the channel is closed,
// flushing a final partial batch with a short grace period either way.
func (p *Pipeline) Run(ctx context.Context, events <-chan sink.Event) {
	var batch []sink.Event
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	drain := func() {
		if len(batch) == 0 {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.writer.FlushBatch(shutdownCtx, p.nodeID, batch); err != nil {
			p.logger.Error("history: final flush failed", zap.Error(err))
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return

		case ev, ok := <-events:
			if !ok {
				drain()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= p.batchSize {
				if err := p.writer.FlushBatch(ctx, p.nodeID, batch); err != nil {
					p.logger.Error("history: batch flush failed", zap.Error(err))
					continue
				}
				batch = nil
			}

		case <-ticker.C:
			if len(batch) == 0 {
				continue
			}
			if err := p.writer.FlushBatch(ctx, p.nodeID, batch); err != nil {
				p.logger.Error("history: ticked flush failed", zap.Error(err))
				continue
			}
			batch = nil
		}
	}
}
