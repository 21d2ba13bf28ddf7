package gateway

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
)

// ModelCache lazily builds and caches the live HTTP client for each
// configured Embedder/Reranker/LLM, coalescing concurrent first-use
// loads for the same model id through a singleflight.Group so a burst of
// requests against a cold model only pays the construction cost once.
type ModelCache struct {
	codec SecretCodec

	mu        sync.RWMutex
	embedders map[int64]modelclient.EmbedderClient
	rerankers map[int64]modelclient.RerankerClient
	chats     map[int64]modelclient.ChatClient

	group singleflight.Group
}

// NewModelCache builds an empty ModelCache using codec to decrypt stored
// API keys on first use of each model.
func NewModelCache(codec SecretCodec) *ModelCache {
	if codec == nil {
		codec = NoopCodec{}
	}
	return &ModelCache{
		codec:     codec,
		embedders: make(map[int64]modelclient.EmbedderClient),
		rerankers: make(map[int64]modelclient.RerankerClient),
		chats:     make(map[int64]modelclient.ChatClient),
	}
}

// Embedder resolves (and caches) the client for e.
func (c *ModelCache) Embedder(e domain.Embedder) (modelclient.EmbedderClient, error) {
	c.mu.RLock()
	if client, ok := c.embedders[e.ID]; ok {
		c.mu.RUnlock()
		return client, nil
	}
	c.mu.RUnlock()

	key := fmt.Sprintf("embedder:%d", e.ID)
	v, err, _ := c.group.Do(key, func() (any, error) {
		apiKey, err := c.codec.Decrypt(e.APIKeyCipher)
		if err != nil {
			return nil, fmt.Errorf("gateway: decrypt embedder %d key: %w", e.ID, err)
		}
		client, err := buildEmbedder(e, apiKey)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.embedders[e.ID] = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(modelclient.EmbedderClient), nil
}

// Reranker resolves (and caches) the client for rc.
func (c *ModelCache) Reranker(rc RerankerConfig) (modelclient.RerankerClient, error) {
	c.mu.RLock()
	if client, ok := c.rerankers[rc.ID]; ok {
		c.mu.RUnlock()
		return client, nil
	}
	c.mu.RUnlock()

	key := fmt.Sprintf("reranker:%d", rc.ID)
	v, err, _ := c.group.Do(key, func() (any, error) {
		apiKey, err := c.codec.Decrypt(rc.APIKeyEnc)
		if err != nil {
			return nil, fmt.Errorf("gateway: decrypt reranker %d key: %w", rc.ID, err)
		}
		client := modelclient.NewCohereReranker(rc.BaseURL, apiKey, rc.Model)
		c.mu.Lock()
		c.rerankers[rc.ID] = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(modelclient.RerankerClient), nil
}

// Chat resolves (and caches) the client for lc.
func (c *ModelCache) Chat(lc LLMConfig) (modelclient.ChatClient, error) {
	c.mu.RLock()
	if client, ok := c.chats[lc.ID]; ok {
		c.mu.RUnlock()
		return client, nil
	}
	c.mu.RUnlock()

	key := fmt.Sprintf("llm:%d", lc.ID)
	v, err, _ := c.group.Do(key, func() (any, error) {
		apiKey, err := c.codec.Decrypt(lc.APIKeyEnc)
		if err != nil {
			return nil, fmt.Errorf("gateway: decrypt llm %d key: %w", lc.ID, err)
		}
		client := buildChat(lc, apiKey)
		c.mu.Lock()
		c.chats[lc.ID] = client
		c.mu.Unlock()
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(modelclient.ChatClient), nil
}

// Forget evicts every cached client; the tests use it to force a fresh
// construction on the next lookup.
func (c *ModelCache) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embedders = make(map[int64]modelclient.EmbedderClient)
	c.rerankers = make(map[int64]modelclient.RerankerClient)
	c.chats = make(map[int64]modelclient.ChatClient)
}

func buildEmbedder(e domain.Embedder, apiKey string) (modelclient.EmbedderClient, error) {
	switch e.Provider {
	case domain.ProviderOllama:
		return modelclient.NewOllamaEmbedder(e.BaseURL, e.Model, e.Dimensions), nil
	case domain.ProviderOpenAI, domain.ProviderCohere:
		return modelclient.NewOpenAIEmbedder(e.BaseURL, apiKey, e.Model, e.Dimensions), nil
	default:
		return nil, fmt.Errorf("gateway: unsupported embedder provider %q", e.Provider)
	}
}

func buildChat(lc LLMConfig, apiKey string) modelclient.ChatClient {
	if lc.Provider == domain.ProviderOllama {
		return modelclient.NewOllamaChat(lc.BaseURL, lc.Model)
	}
	return modelclient.NewOpenAIChat(lc.BaseURL, apiKey, lc.Model)
}
