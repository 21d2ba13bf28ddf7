// Package modelclient defines the HTTP-based interfaces the inference
// gateway uses to reach remote embedding, reranking, and chat-completion
// backends. Every Embedder/LLM configuration resolves to one of these
// clients via the gateway's model cache (engine/gateway/modelcache.go).
package modelclient

import "context"

// EmbedderClient produces vector embeddings for a batch of texts.
type EmbedderClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// RerankerClient scores a set of documents against a query.
type RerankerClient interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)
}

// RerankResult is one scored document, indexed back into the caller's
// original document slice.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ChatMessage is one turn in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient performs (optionally streaming) chat completions.
type ChatClient interface {
	Chat(ctx context.Context, messages []ChatMessage) (string, error)
	ChatStream(ctx context.Context, messages []ChatMessage, onToken func(string)) error
}
