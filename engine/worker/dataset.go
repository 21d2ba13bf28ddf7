package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/vectorstore"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
)

// EmbedderFactory resolves the live client for one configured Embedder.
// Kept as a function rather than a map so callers can lazily construct
// (and cache) clients per provider/base-url/model combination.
type EmbedderFactory func(e domain.Embedder) (modelclient.EmbedderClient, error)

// DatasetDeps wires a Dataset Transform's embed-and-upsert step to its
// backing stores.
type DatasetDeps struct {
	Catalog    catalog.Store
	Vectors    *vectorstore.Registry
	QdrantAddr string
	Clients    EmbedderFactory

	runsMu sync.Mutex
	runs   map[int64]string // embedded_dataset_id -> last-seen run_id, best effort
}

// NewDatasetHandler builds the Handler for VectorEmbedJob: load the
// dataset items named by the job, embed their chunks in provider-sized
// batches, and upsert deterministic-ID points into the embedded
// dataset's Qdrant collection.
func NewDatasetHandler(deps *DatasetDeps) Handler {
	if deps.runs == nil {
		deps.runs = make(map[int64]string)
	}

	return func(ctx context.Context, payload []byte) (Result, error) {
		job, err := decode[VectorEmbedJob](payload)
		if err != nil {
			return Result{}, domain.Classify("dataset", domain.KindPoison, err)
		}

		embedder, err := deps.Catalog.GetEmbedder(ctx, job.EmbedderID)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID, EmbedderID: job.EmbedderID}, fmt.Errorf("dataset: load embedder %d: %w", job.EmbedderID, err)
		}
		client, err := deps.Clients(embedder)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID, EmbedderID: job.EmbedderID}, domain.Classify("dataset", domain.KindPermanent, fmt.Errorf("build embedder client: %w", err))
		}

		if err := deps.maybeWipeForNewRun(ctx, job); err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID, EmbedderID: job.EmbedderID}, fmt.Errorf("dataset: wipe for run %s: %w", job.RunID, err)
		}
		if err := deps.Vectors.EnsureCollection(ctx, deps.QdrantAddr, job.CollectionName, embedder.Dimensions); err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID, EmbedderID: job.EmbedderID}, fmt.Errorf("dataset: ensure collection %s: %w", job.CollectionName, err)
		}

		store, err := deps.Vectors.Store(deps.QdrantAddr, job.CollectionName)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID, EmbedderID: job.EmbedderID}, fmt.Errorf("dataset: open store: %w", err)
		}

		type flatChunk struct {
			itemID int64
			chunk  domain.Chunk
		}
		var flat []flatChunk
		var lastItemID int64
		for _, itemID := range job.ItemIDs {
			item, err := deps.Catalog.GetDatasetItem(ctx, itemID)
			if err != nil {
				return Result{BatchKey: job.BatchKey, TransformID: job.TransformID, EmbedderID: job.EmbedderID}, fmt.Errorf("dataset: load item %d: %w", itemID, err)
			}
			for _, c := range item.Chunks {
				flat = append(flat, flatChunk{itemID: itemID, chunk: c})
			}
			if itemID > lastItemID {
				lastItemID = itemID
			}
		}

		okCount, failCount := 0, 0
		max := embedder.EffectiveBatchSize()
		for _, group := range splitBatch(flat, max) {
			texts := make([]string, len(group))
			for i, fc := range group {
				texts[i] = fc.chunk.Content
			}

			embeddings, err := client.Embed(ctx, texts)
			if err != nil {
				failCount += len(group)
				continue
			}

			points := make([]vectorstore.Point, 0, len(group))
			for i, fc := range group {
				if i >= len(embeddings) || embeddings[i] == nil {
					failCount++
					continue
				}
				pointID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%d-%d-%d", job.EmbeddedDatasetID, fc.itemID, fc.chunk.Index))).String()
				points = append(points, vectorstore.Point{
					ID:        pointID,
					Embedding: embeddings[i],
					Payload: map[string]any{
						"content":     fc.chunk.Content,
						"item_id":     fmt.Sprint(fc.itemID),
						"chunk_index": fc.chunk.Index,
					},
				})
			}
			if err := store.Upsert(ctx, points); err != nil {
				failCount += len(points)
				continue
			}
			okCount += len(points)
		}

		result := Result{
			BatchKey:          job.BatchKey,
			TransformID:       job.TransformID,
			EmbedderID:        job.EmbedderID,
			EmbeddedDatasetID: job.EmbeddedDatasetID,
			Owner:             job.Owner,
			ChunksOK:          okCount,
			ChunksFailed:      failCount,
			LastItemID:        lastItemID,
		}
		if failCount > 0 && okCount == 0 {
			return result, domain.Classify("dataset", domain.KindTransient, fmt.Errorf("all %d chunks failed to embed", failCount))
		}
		return result, nil
	}
}

// maybeWipeForNewRun purges the previous run's points the first time a
// given process observes a new run_id for an embedded dataset, so a
// changed embedder configuration (different model or dimensions) doesn't
// leave stale vectors alongside the new ones. Best-effort and
// process-local: the reconciler's full-rebuild path (not modeled here)
// is the authoritative place a distributed wipe would be coordinated.
func (d *DatasetDeps) maybeWipeForNewRun(ctx context.Context, job VectorEmbedJob) error {
	if job.RunID == "" {
		return nil
	}
	d.runsMu.Lock()
	seen, ok := d.runs[job.EmbeddedDatasetID]
	d.runs[job.EmbeddedDatasetID] = job.RunID
	d.runsMu.Unlock()

	if ok && seen != job.RunID {
		store, err := d.Vectors.Store(d.QdrantAddr, job.CollectionName)
		if err != nil {
			return err
		}
		if err := store.DeleteCollection(ctx); err != nil {
			return err
		}
		d.Vectors.Forget(d.QdrantAddr, job.CollectionName)
	}
	return nil
}
