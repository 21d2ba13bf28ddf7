package gateway

import (
	"fmt"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

// RerankerConfig describes one configured reranking backend. Unlike
// Embedder, rerankers and chat models are not part of the transform
// pipeline's catalog schema (spec.md's data model only names Embedder),
// so the gateway resolves them from its own static configuration instead
// of a catalog table.
type RerankerConfig struct {
	ID        int64                   `json:"id"`
	Owner     string                  `json:"owner"`
	Provider  domain.EmbedderProvider `json:"provider"`
	BaseURL   string                  `json:"base_url"`
	APIKeyEnc []byte                  `json:"-"`
	Model     string                  `json:"model"`
}

// LLMConfig describes one configured chat/completion backend.
type LLMConfig struct {
	ID          int64                   `json:"id"`
	Owner       string                  `json:"owner"`
	Provider    domain.EmbedderProvider `json:"provider"`
	BaseURL     string                  `json:"base_url"`
	APIKeyEnc   []byte                  `json:"-"`
	Model       string                  `json:"model"`
	Temperature float32                 `json:"temperature"`
}

// StaticRegistry holds the gateway-local reranker/LLM configuration
// loaded once at startup (from the gateway's own Config, not the
// catalog).
type StaticRegistry struct {
	rerankers map[int64]RerankerConfig
	llms      map[int64]LLMConfig
}

// NewStaticRegistry builds a StaticRegistry from configured slices.
func NewStaticRegistry(rerankers []RerankerConfig, llms []LLMConfig) *StaticRegistry {
	r := &StaticRegistry{
		rerankers: make(map[int64]RerankerConfig, len(rerankers)),
		llms:      make(map[int64]LLMConfig, len(llms)),
	}
	for _, rc := range rerankers {
		r.rerankers[rc.ID] = rc
	}
	for _, lc := range llms {
		r.llms[lc.ID] = lc
	}
	return r
}

func (r *StaticRegistry) Reranker(id int64) (RerankerConfig, error) {
	rc, ok := r.rerankers[id]
	if !ok {
		return RerankerConfig{}, fmt.Errorf("gateway: unknown reranker %d", id)
	}
	return rc, nil
}

func (r *StaticRegistry) LLM(id int64) (LLMConfig, error) {
	lc, ok := r.llms[id]
	if !ok {
		return LLMConfig{}, fmt.Errorf("gateway: unknown llm %d", id)
	}
	return lc, nil
}

func (r *StaticRegistry) ListRerankers() []RerankerConfig {
	out := make([]RerankerConfig, 0, len(r.rerankers))
	for _, rc := range r.rerankers {
		out = append(out, rc)
	}
	return out
}

func (r *StaticRegistry) ListLLMs() []LLMConfig {
	out := make([]LLMConfig, 0, len(r.llms))
	for _, lc := range r.llms {
		out = append(out, lc)
	}
	return out
}
