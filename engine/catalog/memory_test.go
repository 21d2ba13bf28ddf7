package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

func TestMemory_CollectionCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c, err := m.CreateCollection(ctx, domain.Collection{Owner: "acme", Title: "docs"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := m.GetCollection(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "docs" {
		t.Fatalf("expected title docs, got %q", got.Title)
	}

	if err := m.DeleteCollection(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetCollection(ctx, c.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_ListDatasetItemsSince_Cursor(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	d := m.SeedDataset(domain.Dataset{Owner: "acme", Title: "ds"})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SeedDatasetItems(d.ID, []domain.DatasetItem{
		{ID: 1, DatasetID: d.ID, Title: "a", UpdatedAt: base},
		{ID: 2, DatasetID: d.ID, Title: "b", UpdatedAt: base.Add(time.Minute)},
		{ID: 3, DatasetID: d.ID, Title: "c", UpdatedAt: base.Add(2 * time.Minute)},
	})

	page1, err := m.ListDatasetItemsSince(ctx, d.ID, time.Time{}, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page1) != 2 || page1[0].Title != "a" || page1[1].Title != "b" {
		t.Fatalf("unexpected page1: %+v", page1)
	}

	page2, err := m.ListDatasetItemsSince(ctx, d.ID, page1[1].UpdatedAt, page1[1].ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page2) != 1 || page2[0].Title != "c" {
		t.Fatalf("unexpected page2: %+v", page2)
	}
}

func TestMemory_AdvanceWatermark_NeverRegresses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ed, err := m.UpsertEmbeddedDataset(ctx, domain.EmbeddedDataset{Owner: "acme", DatasetTransformID: 1, SourceDatasetID: 2, EmbedderID: 3})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	later := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	if err := m.AdvanceWatermark(ctx, ed.ID, later, 10); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := m.AdvanceWatermark(ctx, ed.ID, earlier, 99); err != nil {
		t.Fatalf("advance regress: %v", err)
	}

	got, err := m.GetEmbeddedDataset(ctx, ed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastProcessedAt.Equal(later) || got.LastProcessedItemID != 10 {
		t.Fatalf("watermark regressed: %+v", got)
	}
}

func TestMemory_UpsertEmbeddedDataset_IsIdempotentOnKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, err := m.UpsertEmbeddedDataset(ctx, domain.EmbeddedDataset{Owner: "acme", DatasetTransformID: 1, SourceDatasetID: 2, EmbedderID: 3, Dimensions: 768})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := m.UpsertEmbeddedDataset(ctx, domain.EmbeddedDataset{Owner: "acme", DatasetTransformID: 1, SourceDatasetID: 2, EmbedderID: 3, Dimensions: 1536})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same row, got ids %d and %d", first.ID, second.ID)
	}
	if second.Dimensions != 1536 {
		t.Fatalf("expected dims updated to 1536, got %d", second.Dimensions)
	}
}

func TestMemory_UpdateStats_Invariant(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	next, err := m.UpdateStats(ctx, func(s domain.TransformStats) domain.TransformStats {
		s.DispatchedBatches = 5
		s.DispatchedChunks = 500
		return s
	}, 10, 20)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	next, err = m.UpdateStats(ctx, func(s domain.TransformStats) domain.TransformStats {
		s.SuccessfulBatches++
		return s
	}, 10, 20)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !next.Invariant() {
		t.Fatalf("invariant violated: %+v", next)
	}
	if next.SuccessfulBatches != 1 || next.DispatchedBatches != 5 {
		t.Fatalf("unexpected stats: %+v", next)
	}
}

func TestMemory_BatchRetryLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	b, err := m.CreateBatch(ctx, domain.Batch{BatchType: domain.BatchDataset, TransformID: 1, EmbedderID: 2, BatchKey: "k1", Payload: []byte("{}")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != domain.BatchPending {
		t.Fatalf("expected pending, got %s", b.Status)
	}

	due, err := m.SelectPendingForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(due) != 1 || due[0].ID != b.ID {
		t.Fatalf("expected batch due for dispatch, got %+v", due)
	}

	if err := m.IncrementRetry(ctx, b.ID, time.Now().Add(time.Hour), "timeout"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	notDue, err := m.SelectPendingForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(notDue) != 0 {
		t.Fatalf("expected no batches due, got %+v", notDue)
	}

	if err := m.MarkBatchResult(ctx, "k1", true, ""); err != nil {
		t.Fatalf("mark result: %v", err)
	}

	n, err := m.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("gc: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 batch swept, got %d", n)
	}
}

func TestMemory_FailBatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	b, err := m.CreateBatch(ctx, domain.Batch{BatchType: domain.BatchCollection, TransformID: 1, BatchKey: "k2", Payload: []byte("{}")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.FailBatch(ctx, b.ID, "poison"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	due, err := m.SelectPendingForRetry(ctx, 10)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("failed batch should not be selected for retry, got %+v", due)
	}
}
