package worker

import (
	"context"
	"fmt"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/pkg/objectstore"
)

// CollectionDeps wires a Collection Transform's extraction and chunking
// step to its backing stores.
type CollectionDeps struct {
	Objects    objectstore.Store
	Catalog    catalog.Store
	Extractors map[string]ExtractorFunc // keyed by content type; falls back to PlainTextExtractor
	Chunker    ChunkerFunc              // falls back to DefaultChunker
}

// NewCollectionHandler builds the Handler for TransformFileJob: fetch the
// raw object, extract text, chunk it, and persist the result onto the
// Dataset item the Collection Transform feeds.
func NewCollectionHandler(deps CollectionDeps) Handler {
	chunker := deps.Chunker
	if chunker == nil {
		chunker = DefaultChunker
	}

	return func(ctx context.Context, payload []byte) (Result, error) {
		job, err := decode[TransformFileJob](payload)
		if err != nil {
			return Result{}, domain.Classify("collection", domain.KindPoison, err)
		}

		content, err := deps.Objects.Get(ctx, job.ObjectKey)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, fmt.Errorf("collection: fetch object %s: %w", job.ObjectKey, err)
		}

		extractor, ok := deps.Extractors[job.ContentType]
		if !ok {
			extractor = PlainTextExtractor
		}
		text, err := extractor(content, job.ContentType)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, domain.Classify("collection", domain.KindPermanent, fmt.Errorf("extract %s: %w", job.ObjectKey, err))
		}

		chunks := chunker(text)

		_, err = deps.Catalog.UpsertDatasetItem(ctx, domain.DatasetItem{
			DatasetID: job.DatasetID,
			Title:     job.ObjectKey,
			Chunks:    chunks,
		})
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, fmt.Errorf("collection: upsert dataset item: %w", err)
		}

		return Result{
			BatchKey:    job.BatchKey,
			TransformID: job.TransformID,
			ChunksOK:    len(chunks),
		}, nil
	}
}
