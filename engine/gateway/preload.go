package gateway

import (
	"context"
	"log/slog"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
)

// Preload warms the model cache for the Embedders whose ids are listed in
// embedderIDs plus every configured reranker/LLM, so the first real request against each model
// doesn't pay the singleflight-coalesced construction cost. Best-effort:
// a failed warm call is logged and otherwise ignored, since the
// model-cache's own lazy path will retry on the next real request.
func Preload(ctx context.Context, cache *ModelCache, cat catalog.Store, embedderIDs []int64, registry *StaticRegistry, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	embedders, err := cat.ListEmbedders(ctx, embedderIDs)
	if err != nil {
		log.Warn("gateway: preload list embedders failed", "error", err)
	}
	for _, e := range embedders {
		if _, err := cache.Embedder(e); err != nil {
			log.Warn("gateway: preload embedder failed", "embedder_id", e.ID, "error", err)
		}
	}

	if registry == nil {
		return
	}
	for _, rc := range registry.ListRerankers() {
		if _, err := cache.Reranker(rc); err != nil {
			log.Warn("gateway: preload reranker failed", "reranker_id", rc.ID, "error", err)
		}
	}
	for _, lc := range registry.ListLLMs() {
		if _, err := cache.Chat(lc); err != nil {
			log.Warn("gateway: preload llm failed", "llm_id", lc.ID, "error", err)
		}
	}
}
