package scanner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/worker"
	"github.com/FishySoftware/semantic-explorer/pkg/bus"
	"github.com/FishySoftware/semantic-explorer/pkg/objectstore"
	"github.com/FishySoftware/semantic-explorer/pkg/resilience"
)

// maxPendingDepth is the work-stream backlog at which the scanner stops
// dispatching new batches for a transform kind, so a slow worker fleet
// applies backpressure to the scanner instead of the stream growing
// without bound.
const maxPendingDepth = 5000

// Scanner periodically finds outstanding work across all three transform
// kinds and dispatches one Batch + job per unit of work.
type Scanner struct {
	Catalog    catalog.Store
	Bus        *bus.Bus
	Objects    objectstore.Store
	ScanLimit  int
	Log        *slog.Logger
	breakers   map[string]*resilience.Breaker
	consumers  map[string]*bus.Consumer
}

// New constructs a Scanner with per-kind circuit breakers, so a run of
// publish failures against one job kind doesn't also throttle the others.
func New(cat catalog.Store, b *bus.Bus, objects objectstore.Store, consumers map[string]*bus.Consumer, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	breakers := map[string]*resilience.Breaker{
		string(domain.BatchCollection):    resilience.NewBreaker(resilience.DefaultBreakerOpts),
		string(domain.BatchDataset):       resilience.NewBreaker(resilience.DefaultBreakerOpts),
		string(domain.BatchVisualization): resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	return &Scanner{
		Catalog: cat, Bus: b, Objects: objects, ScanLimit: 500,
		Log: log, breakers: breakers, consumers: consumers,
	}
}

// ScanOnce runs a single pass over all enabled transforms of every kind.
// Intended to be called on a fixed interval (cmd/scanner's main loop).
func (s *Scanner) ScanOnce(ctx context.Context) error {
	if err := s.scanCollectionTransforms(ctx); err != nil {
		s.Log.Error("scanner: collection pass failed", "error", err)
	}
	if err := s.scanDatasetTransforms(ctx); err != nil {
		s.Log.Error("scanner: dataset pass failed", "error", err)
	}
	if err := s.scanVisualizationTransforms(ctx); err != nil {
		s.Log.Error("scanner: visualization pass failed", "error", err)
	}
	return nil
}

func (s *Scanner) backpressured(kind string) bool {
	c, ok := s.consumers[kind]
	if !ok {
		return false
	}
	pending, _, err := c.Depth()
	if err != nil {
		s.Log.Warn("scanner: depth check failed", "kind", kind, "error", err)
		return false
	}
	return pending > maxPendingDepth
}

func (s *Scanner) scanCollectionTransforms(ctx context.Context) error {
	kind := string(domain.BatchCollection)
	if s.backpressured(kind) {
		s.Log.Info("scanner: backpressure, skipping collection pass")
		return nil
	}

	transforms, err := s.Catalog.ListEnabledCollectionTransforms(ctx)
	if err != nil {
		return fmt.Errorf("scanner: list collection transforms: %w", err)
	}

	for _, t := range transforms {
		if err := s.breakers[kind].Call(ctx, func(ctx context.Context) error {
			return s.dispatchCollectionTransform(ctx, t)
		}); err != nil {
			s.Log.Error("scanner: collection transform dispatch failed", "transform_id", t.ID, "error", err)
		}
	}
	return nil
}

func (s *Scanner) dispatchCollectionTransform(ctx context.Context, t domain.CollectionTransform) error {
	prefix := fmt.Sprintf("raw/%s/%d/", t.Owner, t.CollectionID)
	keys, err := s.Objects.ListPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list objects %s: %w", prefix, err)
	}

	dispatched := 0
	for _, key := range keys {
		batchKey := batchKeyFor("collection", t.ID, key)
		job := worker.TransformFileJob{
			TransformID: t.ID, CollectionID: t.CollectionID, DatasetID: t.DatasetID,
			Owner: t.Owner, ObjectKey: key, BatchKey: batchKey,
		}
		if err := s.dispatch(ctx, domain.BatchCollection, t.ID, 0, batchKey, job); err != nil {
			return err
		}
		dispatched++
	}
	if dispatched > 0 {
		return s.bumpDispatched(ctx, t.ID, 0, dispatched, dispatched)
	}
	return nil
}

func (s *Scanner) scanDatasetTransforms(ctx context.Context) error {
	kind := string(domain.BatchDataset)
	if s.backpressured(kind) {
		s.Log.Info("scanner: backpressure, skipping dataset pass")
		return nil
	}

	transforms, err := s.Catalog.ListEnabledDatasetTransforms(ctx)
	if err != nil {
		return fmt.Errorf("scanner: list dataset transforms: %w", err)
	}

	for _, t := range transforms {
		if err := s.breakers[kind].Call(ctx, func(ctx context.Context) error {
			return s.dispatchDatasetTransform(ctx, t)
		}); err != nil {
			s.Log.Error("scanner: dataset transform dispatch failed", "transform_id", t.ID, "error", err)
		}
	}
	return nil
}

func (s *Scanner) dispatchDatasetTransform(ctx context.Context, t domain.DatasetTransform) error {
	for _, embedderID := range t.EmbedderIDs {
		ed, err := s.embeddedDatasetFor(ctx, t, embedderID)
		if err != nil {
			return err
		}

		items, err := s.Catalog.ListDatasetItemsSince(ctx, t.DatasetID, ed.LastProcessedAt, ed.LastProcessedItemID, s.ScanLimit)
		if err != nil {
			return fmt.Errorf("list dataset items: %w", err)
		}
		if len(items) == 0 {
			continue
		}

		batches := packDatasetItems(items, maxChunksPerDatasetBatch)
		dispatchedBatches, dispatchedChunks := 0, 0
		for _, batch := range batches {
			ids := make([]int64, len(batch))
			chunkCount := 0
			for i, item := range batch {
				ids[i] = item.ID
				chunkCount += len(item.Chunks)
			}
			batchKey := batchKeyFor("dataset", t.ID, fmt.Sprintf("%d-%d-%d", embedderID, ids[0], ids[len(ids)-1]))
			job := worker.VectorEmbedJob{
				TransformID: t.ID, EmbeddedDatasetID: ed.ID, DatasetID: t.DatasetID,
				EmbedderID: embedderID, Owner: t.Owner, CollectionName: ed.CollectionName,
				ItemIDs: ids, BatchKey: batchKey, RunID: t.CurrentRunID,
			}
			if err := s.dispatch(ctx, domain.BatchDataset, t.ID, embedderID, batchKey, job); err != nil {
				return err
			}
			dispatchedBatches++
			dispatchedChunks += chunkCount
		}
		if dispatchedBatches > 0 {
			if err := s.bumpDispatched(ctx, t.ID, embedderID, dispatchedBatches, dispatchedChunks); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scanner) embeddedDatasetFor(ctx context.Context, t domain.DatasetTransform, embedderID int64) (domain.EmbeddedDataset, error) {
	embedders, err := s.Catalog.ListEmbedders(ctx, []int64{embedderID})
	if err != nil || len(embedders) == 0 {
		return domain.EmbeddedDataset{}, fmt.Errorf("load embedder %d: %w", embedderID, err)
	}

	ed, err := s.Catalog.UpsertEmbeddedDataset(ctx, domain.EmbeddedDataset{
		Owner: t.Owner, DatasetTransformID: t.ID, SourceDatasetID: t.DatasetID, EmbedderID: embedderID,
		Dimensions: embedders[0].Dimensions,
	})
	if err != nil {
		return domain.EmbeddedDataset{}, fmt.Errorf("upsert embedded dataset: %w", err)
	}
	if ed.CollectionName == "" {
		ed.CollectionName = domain.VectorCollectionName(t.Owner, ed.ID)
		ed, err = s.Catalog.UpsertEmbeddedDataset(ctx, ed)
		if err != nil {
			return domain.EmbeddedDataset{}, fmt.Errorf("name embedded dataset collection: %w", err)
		}
	}
	return ed, nil
}

func (s *Scanner) scanVisualizationTransforms(ctx context.Context) error {
	kind := string(domain.BatchVisualization)
	if s.backpressured(kind) {
		s.Log.Info("scanner: backpressure, skipping visualization pass")
		return nil
	}

	transforms, err := s.Catalog.ListEnabledVisualizationTransforms(ctx)
	if err != nil {
		return fmt.Errorf("scanner: list visualization transforms: %w", err)
	}

	for _, t := range transforms {
		if err := s.breakers[kind].Call(ctx, func(ctx context.Context) error {
			return s.dispatchVisualizationTransform(ctx, t)
		}); err != nil {
			s.Log.Error("scanner: visualization transform dispatch failed", "transform_id", t.ID, "error", err)
		}
	}
	return nil
}

func (s *Scanner) dispatchVisualizationTransform(ctx context.Context, t domain.VisualizationTransform) error {
	ed, err := s.Catalog.GetEmbeddedDataset(ctx, t.EmbeddedDatasetID)
	if err != nil {
		return fmt.Errorf("load embedded dataset %d: %w", t.EmbeddedDatasetID, err)
	}

	batchKey := batchKeyFor("visualization", t.ID, fmt.Sprintf("%d-%d", t.ID, ed.LastProcessedItemID))
	job := worker.VisualizationTransformJob{
		TransformID: t.ID, EmbeddedDatasetID: ed.ID, Owner: t.Owner,
		CollectionName: ed.CollectionName, BatchKey: batchKey,
	}
	if err := s.dispatch(ctx, domain.BatchVisualization, t.ID, 0, batchKey, job); err != nil {
		return err
	}
	return s.bumpDispatched(ctx, t.ID, 0, 1, 0)
}

// dispatch records a Batch row, publishes the job, and marks the batch
// published — in that order, so a crash between record and publish just
// leaves a pending row the reconciler will redispatch (§4.2).
func (s *Scanner) dispatch(ctx context.Context, batchType domain.BatchType, transformID, embedderID int64, batchKey string, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	b, err := s.Catalog.CreateBatch(ctx, domain.Batch{
		BatchType: batchType, TransformID: transformID, EmbedderID: embedderID,
		BatchKey: batchKey, Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("create batch: %w", err)
	}

	subject := bus.JobSubject(string(batchType))
	if err := s.Bus.Publish(ctx, subject, batchKey, job); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	return s.Catalog.MarkBatchPublished(ctx, b.ID)
}

func (s *Scanner) bumpDispatched(ctx context.Context, transformID, embedderID int64, batches, chunks int) error {
	_, err := s.Catalog.UpdateStats(ctx, func(st domain.TransformStats) domain.TransformStats {
		if st.FirstProcessingAt.IsZero() {
			st.FirstProcessingAt = time.Now().UTC()
		}
		st.DispatchedBatches += int64(batches)
		st.DispatchedChunks += int64(chunks)
		st.ProcessingBatches += int64(batches)
		st.TotalChunksToProcess += int64(chunks)
		st.TotalChunksProcessing += int64(chunks)
		return st
	}, transformID, embedderID)
	return err
}

// batchKeyFor derives a stable key from kind, transform and disambiguator.
// It is sent as the Nats-Msg-Id, so JetStream drops a second publish of the
// same key inside the stream's duplicate window. It is also stored as
// pending_batches.batch_key, but CreateBatch does not look for an existing
// row with that key, so a repeated pass adds a second row.
func batchKeyFor(kind string, transformID int64, disambiguator string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s:%d:%s", kind, transformID, disambiguator)))
	return kind + "-" + hex.EncodeToString(sum[:8])
}
