package objectstore

import (
	"context"
	"testing"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	key := ChunkKey(1, 2, 0)
	if err := m.Put(ctx, key, []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}

	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, key); err == nil {
		t.Fatal("expected error after delete")
	}
}

func TestMemoryStore_ListPrefix(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.Put(ctx, ChunkKey(1, 1, 0), []byte("a"), "text/plain")
	m.Put(ctx, ChunkKey(1, 1, 1), []byte("b"), "text/plain")
	m.Put(ctx, ChunkKey(2, 1, 0), []byte("c"), "text/plain")

	keys, err := m.ListPrefix(ctx, "chunks/1/")
	if err != nil {
		t.Fatalf("ListPrefix: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys under chunks/1/, got %d: %v", len(keys), keys)
	}
}

func TestChunkKey(t *testing.T) {
	got := ChunkKey(42, 7, 3)
	want := "chunks/42/7/3"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
