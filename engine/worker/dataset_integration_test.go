//go:build integration

package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/vectorstore"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
)

func qdrantAddr(t *testing.T) string {
	addr := os.Getenv("QDRANT_ADDR")
	if addr == "" {
		t.Skip("QDRANT_ADDR not set")
	}
	return addr
}

type fakeEmbedder struct{ dims int }

func (f fakeEmbedder) Dimensions() int { return f.dims }
func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func TestDatasetHandler_EmbedsAndUpserts(t *testing.T) {
	addr := qdrantAddr(t)

	cat := catalog.NewMemory()
	ds := cat.SeedDataset(domain.Dataset{Owner: "acme", Title: "ds"})
	item, err := cat.UpsertDatasetItem(context.Background(), domain.DatasetItem{
		DatasetID: ds.ID, Title: "doc",
		Chunks: []domain.Chunk{{Index: 0, Content: "hello"}, {Index: 1, Content: "world"}},
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	embedder := cat.SeedEmbedder(domain.Embedder{Owner: "acme", Provider: domain.ProviderOllama, Model: "test", Dimensions: 4})

	deps := &DatasetDeps{
		Catalog:    cat,
		Vectors:    vectorstore.NewRegistry(),
		QdrantAddr: addr,
		Clients: func(e domain.Embedder) (modelclient.EmbedderClient, error) {
			return fakeEmbedder{dims: e.Dimensions}, nil
		},
	}
	handler := NewDatasetHandler(deps)

	job := VectorEmbedJob{
		TransformID: 1, EmbeddedDatasetID: 1, DatasetID: ds.ID, EmbedderID: embedder.ID,
		Owner: "acme", CollectionName: "test_dataset_handler_viz",
		ItemIDs: []int64{item.ID}, BatchKey: "b1", RunID: "run-1",
	}
	payload, _ := json.Marshal(job)

	result, err := handler(context.Background(), payload)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.ChunksOK != 2 {
		t.Fatalf("expected 2 chunks embedded, got %+v", result)
	}
}
