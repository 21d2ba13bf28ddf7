// Package listener consumes worker results off the results stream,
// applies them to the catalog's per-transform stats and watermarks, and
// fans the derived status out over plain NATS pub/sub for SSE consumers.
package listener

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/worker"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/natsutil"
)

// StatusEvent is published to bus.StatusSubject whenever a result moves a
// transform into a new derived status.
type StatusEvent struct {
	TransformID int64                  `json:"transform_id"`
	EmbedderID  int64                  `json:"embedder_id,omitempty"`
	Status      domain.TransformStatus `json:"status"`
	At          time.Time              `json:"at"`
}

// Listener drains one consumer per job kind off the results stream.
type Listener struct {
	Catalog   catalog.Store
	Bus       *bus.Bus
	Consumers map[string]*bus.Consumer // keyed by kind: "collection", "dataset", "visualization"
	Log       *slog.Logger
}

// New constructs a Listener.
func New(cat catalog.Store, b *bus.Bus, consumers map[string]*bus.Consumer, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{Catalog: cat, Bus: b, Consumers: consumers, Log: log}
}

// Run drains every kind's result consumer until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	errCh := make(chan error, len(l.Consumers))
	for kind, consumer := range l.Consumers {
		go func(kind string, c *bus.Consumer) {
			errCh <- l.drain(ctx, kind, c)
		}(kind, consumer)
	}
	for range l.Consumers {
		if err := <-errCh; err != nil && ctx.Err() == nil {
			return err
		}
	}
	return ctx.Err()
}

func (l *Listener) drain(ctx context.Context, kind string, c *bus.Consumer) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		msgs, err := c.Fetch(fetchCtx, 32)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.Log.Warn("listener: fetch failed", "kind", kind, "error", err)
			continue
		}
		for _, msg := range msgs {
			var result worker.Result
			if err := json.Unmarshal(msg.Data, &result); err != nil {
				l.Log.Error("listener: decode result failed", "kind", kind, "error", err)
				bus.Term(msg)
				continue
			}
			if err := l.apply(ctx, kind, result); err != nil {
				l.Log.Error("listener: apply result failed", "kind", kind, "batch_key", result.BatchKey, "error", err)
				bus.Nak(msg, 5*time.Second)
				continue
			}
			bus.Ack(msg)
		}
	}
}

// apply is the transactional core: it marks the batch's terminal state,
// mutates the transform's stats counters, optionally advances the
// embedded dataset's watermark, then republishes the newly derived
// status for SSE consumers.
func (l *Listener) apply(ctx context.Context, kind string, result worker.Result) error {
	if err := l.Catalog.MarkBatchResult(ctx, result.BatchKey, result.Success, result.ErrorMessage); err != nil {
		return err
	}

	stats, err := l.Catalog.UpdateStats(ctx, func(s domain.TransformStats) domain.TransformStats {
		s.ProcessingBatches = decrementFloor(s.ProcessingBatches)
		if result.Success {
			s.SuccessfulBatches++
		} else {
			s.FailedBatches++
		}
		s.TotalChunksEmbedded += int64(result.ChunksOK)
		s.TotalChunksFailed += int64(result.ChunksFailed)
		s.TotalChunksProcessing = decrementFloorBy(s.TotalChunksProcessing, int64(result.ChunksOK+result.ChunksFailed))
		s.LastProcessedAt = result.ProcessedAt
		return s
	}, result.TransformID, result.EmbedderID)
	if err != nil {
		return err
	}

	if result.Success && result.EmbeddedDatasetID != 0 && result.LastItemID != 0 {
		if err := l.Catalog.AdvanceWatermark(ctx, result.EmbeddedDatasetID, result.ProcessedAt, result.LastItemID); err != nil {
			l.Log.Warn("listener: advance watermark failed", "embedded_dataset_id", result.EmbeddedDatasetID, "error", err)
		}
	}

	if l.Bus == nil {
		return nil
	}
	event := StatusEvent{TransformID: result.TransformID, EmbedderID: result.EmbedderID, Status: stats.Status(), At: result.ProcessedAt}
	subject := bus.StatusSubject(kind, result.Owner, result.EmbeddedDatasetID, result.TransformID)
	if perr := natsutil.Publish(ctx, l.Bus.Conn(), subject, event); perr != nil {
		l.Log.Warn("listener: status publish failed", "subject", subject, "error", perr)
	}
	return nil
}

func decrementFloor(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return n - 1
}

func decrementFloorBy(n, by int64) int64 {
	if n <= by {
		return 0
	}
	return n - by
}
