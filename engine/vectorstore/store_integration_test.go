//go:build integration

package vectorstore

import (
	"context"
	"os"
	"testing"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		return v
	}
	return "localhost:6334"
}

func testStore(t *testing.T, collection string) *Store {
	t.Helper()
	reg := NewRegistry()
	s, err := reg.Store(qdrantAddr(), collection)
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() {
		s.DeleteCollection(context.Background())
		reg.Close()
	})
	return s
}

func TestQdrant_EnsureCollection(t *testing.T) {
	s := testStore(t, "test_ensure")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	// Calling again should be idempotent
	if err := s.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection (idempotent): %v", err)
	}
}

func TestQdrant_UpsertAndSearch(t *testing.T) {
	s := testStore(t, "test_upsert_search")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	points := []Point{
		{ID: "a1111111-1111-1111-1111-111111111111", Embedding: []float32{1, 0, 0, 0}, Payload: map[string]any{"content": "oil change", "item_id": "d1"}},
		{ID: "b2222222-2222-2222-2222-222222222222", Embedding: []float32{0, 1, 0, 0}, Payload: map[string]any{"content": "brake pads", "item_id": "d2"}},
		{ID: "c3333333-3333-3333-3333-333333333333", Embedding: []float32{0.9, 0.1, 0, 0}, Payload: map[string]any{"content": "oil filter", "item_id": "d3"}},
	}

	if err := s.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Content != "oil change" {
		t.Fatalf("expected 'oil change' first, got %q", results[0].Content)
	}
}

func TestQdrant_SearchFiltered(t *testing.T) {
	s := testStore(t, "test_filtered")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	points := []Point{
		{ID: "f1111111-1111-1111-1111-111111111111", Embedding: []float32{1, 0, 0, 0}, Payload: map[string]any{"content": "first chunk", "item_id": "i1", "section": "intro"}},
		{ID: "f2222222-2222-2222-2222-222222222222", Embedding: []float32{0.9, 0.1, 0, 0}, Payload: map[string]any{"content": "second chunk", "item_id": "i1", "section": "body"}},
		{ID: "f3333333-3333-3333-3333-333333333333", Embedding: []float32{0.8, 0.2, 0, 0}, Payload: map[string]any{"content": "other item", "item_id": "i2", "section": "intro"}},
	}
	if err := s.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := s.SearchFiltered(ctx, []float32{1, 0, 0, 0}, 10, map[string]string{"section": "intro"})
	if err != nil {
		t.Fatalf("SearchFiltered: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 intro results, got %d", len(results))
	}

	results, err = s.SearchFiltered(ctx, []float32{1, 0, 0, 0}, 10, map[string]string{"item_id": "i2"})
	if err != nil {
		t.Fatalf("SearchFiltered: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestQdrant_DeleteByItemID(t *testing.T) {
	s := testStore(t, "test_delete")
	ctx := context.Background()

	if err := s.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}

	points := []Point{
		{ID: "d1111111-1111-1111-1111-111111111111", Embedding: []float32{1, 0, 0, 0}, Payload: map[string]any{"content": "to delete", "item_id": "del-1"}},
		{ID: "d2222222-2222-2222-2222-222222222222", Embedding: []float32{0, 1, 0, 0}, Payload: map[string]any{"content": "keep this", "item_id": "keep-1"}},
	}
	if err := s.Upsert(ctx, points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.DeleteByItemID(ctx, "del-1"); err != nil {
		t.Fatalf("DeleteByItemID: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ItemID == "del-1" {
			t.Fatal("deleted item still found")
		}
	}
}

func TestRegistry_EnsureCollectionMemoizes(t *testing.T) {
	reg := NewRegistry()
	t.Cleanup(func() { reg.Close() })
	ctx := context.Background()
	addr := qdrantAddr()

	if err := reg.EnsureCollection(ctx, addr, "test_memo", 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	t.Cleanup(func() {
		s, _ := reg.Store(addr, "test_memo")
		s.DeleteCollection(ctx)
	})

	// Second call should hit the memoization set, not re-verify via List.
	if err := reg.EnsureCollection(ctx, addr, "test_memo", 4); err != nil {
		t.Fatalf("EnsureCollection (memoized): %v", err)
	}
	if _, known := reg.exists[memoKey(addr, "test_memo")]; !known {
		t.Fatal("expected collection to be memoized as existing")
	}
}
