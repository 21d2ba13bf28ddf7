package scanner

import (
	"testing"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

func items(chunkCounts ...int) []domain.DatasetItem {
	out := make([]domain.DatasetItem, len(chunkCounts))
	for i, n := range chunkCounts {
		chunks := make([]domain.Chunk, n)
		for j := range chunks {
			chunks[j] = domain.Chunk{Index: j}
		}
		out[i] = domain.DatasetItem{ID: int64(i + 1), Chunks: chunks}
	}
	return out
}

func TestPackDatasetItems_RespectsChunkCeiling(t *testing.T) {
	batches := packDatasetItems(items(50, 50, 50, 50), 100)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	for _, b := range batches {
		total := 0
		for _, it := range b {
			total += len(it.Chunks)
		}
		if total > 100 {
			t.Fatalf("batch exceeds chunk ceiling: %d", total)
		}
	}
}

func TestPackDatasetItems_OversizedItemGetsOwnBatch(t *testing.T) {
	batches := packDatasetItems(items(500), 100)
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected single oversized batch, got %+v", batches)
	}
}

func TestPackDatasetItems_SkipsEmptyItems(t *testing.T) {
	batches := packDatasetItems(items(0, 10, 0), 100)
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("expected items with no chunks to be skipped, got %+v", batches)
	}
}

func TestPackDatasetItems_DefaultsWhenMaxUnset(t *testing.T) {
	batches := packDatasetItems(items(10), 0)
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
}

func TestBatchKeyFor_Deterministic(t *testing.T) {
	a := batchKeyFor("dataset", 1, "x")
	b := batchKeyFor("dataset", 1, "x")
	c := batchKeyFor("dataset", 1, "y")
	if a != b {
		t.Fatal("expected same inputs to produce same key")
	}
	if a == c {
		t.Fatal("expected different inputs to produce different keys")
	}
}
