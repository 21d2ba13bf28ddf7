package gateway

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

type countingCodec struct {
	calls int32
}

func (c *countingCodec) Decrypt(ciphertext []byte) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	return string(ciphertext), nil
}

func TestModelCache_EmbedderCachedAfterFirstBuild(t *testing.T) {
	codec := &countingCodec{}
	cache := NewModelCache(codec)
	e := domain.Embedder{ID: 1, Provider: domain.ProviderOllama, BaseURL: "http://localhost:11434", Model: "nomic-embed", Dimensions: 768}

	if _, err := cache.Embedder(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cache.Embedder(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&codec.calls) != 1 {
		t.Fatalf("expected codec decrypted once, got %d calls", codec.calls)
	}
}

func TestModelCache_UnsupportedProviderErrors(t *testing.T) {
	cache := NewModelCache(nil)
	e := domain.Embedder{ID: 2, Provider: domain.EmbedderProvider("unknown")}
	if _, err := cache.Embedder(e); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestModelCache_ConcurrentBuildsCoalesce(t *testing.T) {
	codec := &countingCodec{}
	cache := NewModelCache(codec)
	e := domain.Embedder{ID: 3, Provider: domain.ProviderOllama, BaseURL: "http://localhost:11434", Model: "m", Dimensions: 8}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Embedder(e); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if atomic.LoadInt32(&codec.calls) != 1 {
		t.Fatalf("expected singleflight coalescing to decrypt once, got %d calls", codec.calls)
	}
}

func TestModelCache_ForgetEvictsEntries(t *testing.T) {
	codec := &countingCodec{}
	cache := NewModelCache(codec)
	e := domain.Embedder{ID: 4, Provider: domain.ProviderOllama, BaseURL: "http://localhost:11434", Model: "m", Dimensions: 8}

	if _, err := cache.Embedder(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cache.Forget()
	if _, err := cache.Embedder(e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&codec.calls) != 2 {
		t.Fatalf("expected decrypt called again after Forget, got %d calls", codec.calls)
	}
}
