package modelclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIEmbedder implements EmbedderClient against the OpenAI-compatible
// /v1/embeddings endpoint (OpenAI itself, or any gateway that mimics its
// wire format, e.g. vLLM, TEI, LiteLLM).
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	client  *http.Client
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedding client.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dims int) *OpenAIEmbedder {
	return &OpenAIEmbedder{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model, dims: dims, client: &http.Client{}}
}

func (c *OpenAIEmbedder) Dimensions() int { return c.dims }

type openAIEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed sends the whole batch in one request; callers are responsible
// for splitting texts to the provider's batch limit before calling this
// (engine/worker/provider_limits.go).
func (c *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbedReq{Model: c.model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, "/v1/embeddings", body)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modelclient: openai embed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: readErrBody(resp)}
	}

	var result openAIEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("modelclient: openai embed decode: %w", err)
	}
	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}

func (c *OpenAIEmbedder) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// OpenAIChat implements ChatClient against the /v1/chat/completions
// endpoint, used for both RAG chat responses and raw /api/generate.
type OpenAIChat struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAIChat creates an OpenAI-compatible chat client.
func NewOpenAIChat(baseURL, apiKey, model string) *OpenAIChat {
	return &OpenAIChat{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model, client: &http.Client{}}
}

type openAIChatReq struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type openAIChatResp struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIChat) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	body, err := json.Marshal(openAIChatReq{Model: c.model, Messages: messages})
	if err != nil {
		return "", err
	}
	req, err := c.newRequest(ctx, "/v1/chat/completions", body)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("modelclient: openai chat: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: readErrBody(resp)}
	}

	var result openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("modelclient: openai chat decode: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("modelclient: openai chat: empty choices")
	}
	return result.Choices[0].Message.Content, nil
}

// streamChunk matches the SSE "data: {...}" payload OpenAI-compatible
// servers emit for streamed chat completions.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *OpenAIChat) ChatStream(ctx context.Context, messages []ChatMessage, onToken func(string)) error {
	body, err := json.Marshal(openAIChatReq{Model: c.model, Messages: messages, Stream: true})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, "/v1/chat/completions", body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("modelclient: openai chat stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, Body: readErrBody(resp)}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				onToken(choice.Delta.Content)
			}
		}
	}
	return scanner.Err()
}

func (c *OpenAIChat) newRequest(ctx context.Context, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// CohereReranker implements RerankerClient against Cohere's /v1/rerank
// endpoint, the shape the pack's rerank-capable providers converge on.
type CohereReranker struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewCohereReranker creates a Cohere-compatible reranking client.
func NewCohereReranker(baseURL, apiKey, model string) *CohereReranker {
	return &CohereReranker{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model, client: &http.Client{}}
}

type cohereRerankReq struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type cohereRerankResp struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (c *CohereReranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	body, err := json.Marshal(cohereRerankReq{Model: c.model, Query: query, Documents: documents})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("modelclient: rerank: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: readErrBody(resp)}
	}

	var result cohereRerankResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("modelclient: rerank decode: %w", err)
	}
	out := make([]RerankResult, len(result.Results))
	for i, r := range result.Results {
		out[i] = RerankResult{Index: r.Index, Score: r.RelevanceScore}
	}
	return out, nil
}
