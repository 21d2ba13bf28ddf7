// Package rag orchestrates retrieval-augmented chat on top of the
// inference gateway: embed the question, search the target embedded
// dataset's collection, build a grounded prompt, and call the
// configured chat model.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/vectorstore"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
)

// Service is the RAG orchestration service, bound to one embedder and
// one chat client resolved by the gateway's model cache for the
// request's configured Embedder/LLM.
type Service struct {
	embed  modelclient.EmbedderClient
	chat   modelclient.ChatClient
	search SemanticSearcher
	opts   Options
	logger *slog.Logger
}

// SemanticSearcher abstracts the embedded dataset's vector collection.
type SemanticSearcher interface {
	SearchFiltered(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]vectorstore.SearchResult, error)
}

// Options configures the RAG pipeline behaviour.
type Options struct {
	TopK          int
	Temperature   float32
	Model         string
	SystemPrompt  string
	SearchTimeout time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          5,
		Temperature:   0.3,
		Model:         "",
		SystemPrompt:  defaultSystemPrompt,
		SearchTimeout: 5 * time.Second,
	}
}

const defaultSystemPrompt = `You are a retrieval assistant. Answer the user's question using ONLY
the provided context. If the context does not contain enough information, say so.
Cite sources using [source_id].`

// New creates a new RAG Service bound to one embedder and chat client.
func New(embed modelclient.EmbedderClient, chat modelclient.ChatClient, search SemanticSearcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embed: embed, chat: chat, search: search, opts: opts, logger: logger}
}

// Answer represents the structured response from the RAG pipeline.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
	Model   string   `json:"model"`
}

// Source represents a citation backing the answer.
type Source struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	ItemID  string  `json:"item_id"`
	Score   float32 `json:"score"`
}

// Query embeds question, retrieves the topK nearest chunks (optionally
// filtered by metadata such as collection or item tag), and asks the
// chat model to answer grounded in that context.
func (s *Service) Query(ctx context.Context, question string, filter map[string]string) (*Answer, error) {
	s.logger.Info("rag query start", "question_len", len(question))

	embeddings, err := s.embed.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embed query: empty response")
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	results, err := s.search.SearchFiltered(searchCtx, embeddings[0], s.opts.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("rag: semantic search: %w", err)
	}
	s.logger.Info("rag semantic search done", "results", len(results))

	messages := []modelclient.ChatMessage{
		{Role: "system", Content: s.opts.SystemPrompt},
		{Role: "user", Content: buildPrompt(question, results)},
	}

	reply, err := s.chat.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("rag: chat: %w", err)
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{ID: r.ID, Content: r.Content, ItemID: r.ItemID, Score: r.Score}
	}

	return &Answer{Text: reply, Sources: sources, Model: s.opts.Model}, nil
}

// buildPrompt renders the retrieved chunks into a single user-turn
// prompt, each one tagged with the source id the system prompt asks the
// model to cite back.
func buildPrompt(question string, results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "[%s] (score: %.3f)\n%s\n\n", r.ID, r.Score, r.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
