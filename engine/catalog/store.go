// Package catalog is the relational store of record for collections,
// datasets, embedders, transforms, batches, and progress stats — the
// source of truth the scanner reads from and the listener writes to.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

// ErrNotFound is returned by Get-style lookups that find nothing.
var ErrNotFound = errors.New("catalog: not found")

// Store is the full catalog surface. A single implementation (postgres.go)
// backs production; memory.go backs tests.
type Store interface {
	CollectionStore
	DatasetStore
	EmbedderStore
	TransformStore
	BatchStore
	EmbeddedDatasetStore
}

type CollectionStore interface {
	GetCollection(ctx context.Context, id int64) (domain.Collection, error)
	CreateCollection(ctx context.Context, c domain.Collection) (domain.Collection, error)
	DeleteCollection(ctx context.Context, id int64) error
}

type DatasetStore interface {
	GetDataset(ctx context.Context, id int64) (domain.Dataset, error)
	CreateDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, error)
	ListDatasetItemsSince(ctx context.Context, datasetID int64, since time.Time, sinceItemID int64, limit int) ([]domain.DatasetItem, error)
	GetDatasetItem(ctx context.Context, id int64) (domain.DatasetItem, error)

	// UpsertDatasetItem writes the extracted, chunked result of a
	// Collection Transform back to the Dataset it feeds, bumping
	// updated_at so the next Dataset Transform scan picks it up.
	UpsertDatasetItem(ctx context.Context, item domain.DatasetItem) (domain.DatasetItem, error)
}

type EmbedderStore interface {
	GetEmbedder(ctx context.Context, id int64) (domain.Embedder, error)
	ListEmbedders(ctx context.Context, ids []int64) ([]domain.Embedder, error)
}

type EmbeddedDatasetStore interface {
	GetEmbeddedDataset(ctx context.Context, id int64) (domain.EmbeddedDataset, error)
	UpsertEmbeddedDataset(ctx context.Context, ed domain.EmbeddedDataset) (domain.EmbeddedDataset, error)
	AdvanceWatermark(ctx context.Context, id int64, at time.Time, itemID int64) error
	DeleteEmbeddedDataset(ctx context.Context, id int64) error
}

// TransformStore covers all three transform kinds. Kept on one interface
// since the scanner iterates them uniformly by BatchType.
type TransformStore interface {
	ListEnabledCollectionTransforms(ctx context.Context) ([]domain.CollectionTransform, error)
	ListEnabledDatasetTransforms(ctx context.Context) ([]domain.DatasetTransform, error)
	ListEnabledVisualizationTransforms(ctx context.Context) ([]domain.VisualizationTransform, error)

	GetCollectionTransform(ctx context.Context, id int64) (domain.CollectionTransform, error)
	GetDatasetTransform(ctx context.Context, id int64) (domain.DatasetTransform, error)
	GetVisualizationTransform(ctx context.Context, id int64) (domain.VisualizationTransform, error)

	SetDatasetTransformRunID(ctx context.Context, id int64, runID string) error

	GetStats(ctx context.Context, transformID, embedderID int64) (domain.TransformStats, error)
	UpdateStats(ctx context.Context, mutate func(domain.TransformStats) domain.TransformStats, transformID, embedderID int64) (domain.TransformStats, error)
}

// BatchStore persists dispatch intent and backs the reconciler's retry
// loop and the result listener's completion bookkeeping.
type BatchStore interface {
	CreateBatch(ctx context.Context, b domain.Batch) (domain.Batch, error)
	MarkBatchPublished(ctx context.Context, id int64) error
	MarkBatchResult(ctx context.Context, batchKey string, success bool, errMsg string) error

	// SelectPendingForRetry locks up to limit batches whose next_retry_at
	// has elapsed, using SELECT ... FOR UPDATE SKIP LOCKED so multiple
	// reconciler replicas never double-dispatch the same row (§5).
	SelectPendingForRetry(ctx context.Context, limit int) ([]domain.Batch, error)
	IncrementRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastErr string) error
	FailBatch(ctx context.Context, id int64, lastErr string) error

	// DeleteOlderThan sweeps terminal batches past the retention window,
	// the reconciler's housekeeping GC pass.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
