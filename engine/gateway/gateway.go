// Package gateway implements the inference gateway: the HTTP boundary
// between the rest of the platform and remote embedding/reranking/chat
// backends. It owns per-model admission control, GPU pressure shedding,
// and a lazily-populated client cache; everything downstream of
// admission is delegated to pkg/modelclient.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/rag"
	"github.com/FishySoftware/semantic-explorer/engine/vectorstore"
	"github.com/FishySoftware/semantic-explorer/pkg/modelclient"
)

// Config configures a Gateway instance.
type Config struct {
	AdmissionTimeout time.Duration
	QueueCapacity    int
	GPUShedThreshold float64 // 0 disables GPU-pressure shedding
	QdrantAddr       string
	RAGOptions       rag.Options
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		AdmissionTimeout: 10 * time.Second,
		QueueCapacity:    4,
		GPUShedThreshold: 0,
		RAGOptions:       rag.DefaultOptions(),
	}
}

// Gateway wires admission control, the model cache, and the catalog
// together behind an http.Handler.
type Gateway struct {
	cfg      Config
	catalog  catalog.Store
	registry *StaticRegistry
	cache    *ModelCache
	queues   *QueueManager
	pressure *PressureMonitor
	vectors  *vectorstore.Registry
	log      *slog.Logger
}

// New constructs a Gateway.
func New(cfg Config, cat catalog.Store, registry *StaticRegistry, cache *ModelCache, vectors *vectorstore.Registry, pressure *PressureMonitor, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if pressure == nil {
		pressure = NewPressureMonitor(nil, 0)
	}
	return &Gateway{
		cfg: cfg, catalog: cat, registry: registry, cache: cache,
		queues: NewQueueManager(cfg.QueueCapacity), vectors: vectors,
		pressure: pressure, log: log,
	}
}

// Handler builds the full HTTP surface.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embed", g.handleEmbed)
	mux.HandleFunc("POST /api/embed/batch", g.handleEmbedBatch)
	mux.HandleFunc("POST /api/rerank", g.handleRerank)
	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("POST /api/generate", g.handleGenerate)
	mux.HandleFunc("POST /api/generate/stream", g.handleGenerateStream)
	mux.HandleFunc("GET /api/embedders", g.handleListEmbedders)
	mux.HandleFunc("GET /api/rerankers", g.handleListRerankers)
	mux.HandleFunc("GET /api/llms", g.handleListLLMs)
	mux.HandleFunc("GET /health/live", g.handleHealthLive)
	mux.HandleFunc("GET /health/ready", g.handleHealthReady)
	mux.HandleFunc("GET /health/status", g.handleHealthStatus)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeClassifiedError translates a backend call failure through classify
// and writes the resulting status, setting Retry-After on a pressure
// response the same way shedIfUnderPressure does for GPU shedding.
func writeClassifiedError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if kind == domain.KindPressure {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, status, err.Error())
}

func setQueueHeaders(w http.ResponseWriter, q *ModelQueue) {
	inUse, capacity := q.Depth()
	w.Header().Set("X-Queue-Depth", strconv.Itoa(inUse))
	w.Header().Set("X-Queue-Capacity", strconv.Itoa(capacity))
	w.Header().Set("X-Estimated-Wait-Ms", strconv.FormatInt(q.EstimatedWait().Milliseconds(), 10))
}

func (g *Gateway) shedIfUnderPressure(w http.ResponseWriter) bool {
	if g.pressure.ShouldShed(g.cfg.GPUShedThreshold) {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "gpu under pressure")
		return true
	}
	return false
}

// --- /api/embed, /api/embed/batch ---

type embedRequest struct {
	EmbedderID int64    `json:"embedder_id"`
	Texts      []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (g *Gateway) handleEmbed(w http.ResponseWriter, r *http.Request) {
	g.embed(w, r, 1)
}

func (g *Gateway) handleEmbedBatch(w http.ResponseWriter, r *http.Request) {
	g.embed(w, r, 0)
}

// embed implements both single and batch embedding; maxTexts of 0 means
// unbounded (left to the provider's own batch-size limit), 1 means the
// single-text /api/embed endpoint rejects multi-text payloads.
func (g *Gateway) embed(w http.ResponseWriter, r *http.Request, maxTexts int) {
	if g.shedIfUnderPressure(w) {
		return
	}
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "texts is required")
		return
	}
	if maxTexts == 1 && len(req.Texts) != 1 {
		writeError(w, http.StatusBadRequest, "single embed endpoint accepts exactly one text")
		return
	}

	embedder, err := g.catalog.GetEmbedder(r.Context(), req.EmbedderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "embedder not found")
		return
	}
	client, err := g.cache.Embedder(embedder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	q := g.queues.For(modelKey("embedder", embedder.ID))
	setQueueHeaders(w, q)

	var result [][]float32
	err = q.Call(r.Context(), g.cfg.AdmissionTimeout, func(ctx context.Context) error {
		var callErr error
		result, callErr = client.Embed(ctx, req.Texts)
		return callErr
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, embedResponse{Embeddings: result})
}

// --- /api/rerank ---

type rerankRequest struct {
	RerankerID int64    `json:"reranker_id"`
	Query      string   `json:"query"`
	Documents  []string `json:"documents"`
}

func (g *Gateway) handleRerank(w http.ResponseWriter, r *http.Request) {
	if g.shedIfUnderPressure(w) {
		return
	}
	var req rerankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "query and documents are required")
		return
	}

	rc, err := g.registry.Reranker(req.RerankerID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	client, err := g.cache.Reranker(rc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	q := g.queues.For(modelKey("reranker", rc.ID))
	setQueueHeaders(w, q)

	var results []modelclient.RerankResult
	err = q.Call(r.Context(), g.cfg.AdmissionTimeout, func(ctx context.Context) error {
		var callErr error
		results, callErr = client.Rerank(ctx, req.Query, req.Documents)
		return callErr
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// --- /api/chat (RAG) ---

type chatRequest struct {
	EmbedderID        int64             `json:"embedder_id"`
	LLMID             int64             `json:"llm_id"`
	EmbeddedDatasetID int64             `json:"embedded_dataset_id"`
	CollectionName    string            `json:"collection_name"`
	Question          string            `json:"question"`
	Filter            map[string]string `json:"filter,omitempty"`
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if g.shedIfUnderPressure(w) {
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	embedder, err := g.catalog.GetEmbedder(r.Context(), req.EmbedderID)
	if err != nil {
		writeError(w, http.StatusNotFound, "embedder not found")
		return
	}
	embedClient, err := g.cache.Embedder(embedder)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lc, err := g.registry.LLM(req.LLMID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	chatClient, err := g.cache.Chat(lc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	store, err := g.vectors.Store(g.cfg.QdrantAddr, req.CollectionName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts := g.cfg.RAGOptions
	opts.Model = lc.Model
	svc := rag.New(embedClient, chatClient, store, opts, g.log)

	q := g.queues.For(modelKey("llm", lc.ID))
	setQueueHeaders(w, q)

	var answer *rag.Answer
	err = q.Call(r.Context(), g.cfg.AdmissionTimeout, func(ctx context.Context) error {
		var callErr error
		answer, callErr = svc.Query(ctx, req.Question, req.Filter)
		return callErr
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// --- /api/generate, /api/generate/stream ---

type generateRequest struct {
	LLMID    int64                      `json:"llm_id"`
	Messages []modelclient.ChatMessage `json:"messages"`
}

func (g *Gateway) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if g.shedIfUnderPressure(w) {
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	lc, err := g.registry.LLM(req.LLMID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	client, err := g.cache.Chat(lc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	q := g.queues.For(modelKey("llm", lc.ID))
	setQueueHeaders(w, q)

	var reply string
	err = q.Call(r.Context(), g.cfg.AdmissionTimeout, func(ctx context.Context) error {
		var callErr error
		reply, callErr = client.Chat(ctx, req.Messages)
		return callErr
	})
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (g *Gateway) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	if g.shedIfUnderPressure(w) {
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	lc, err := g.registry.LLM(req.LLMID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	client, err := g.cache.Chat(lc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	q := g.queues.For(modelKey("llm", lc.ID))
	setQueueHeaders(w, q)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writer := bufio.NewWriter(w)
	err = q.Call(ctx, g.cfg.AdmissionTimeout, func(ctx context.Context) error {
		return client.ChatStream(ctx, req.Messages, func(token string) {
			fmt.Fprintf(writer, "data: %s\n\n", jsonEscape(token))
			writer.Flush()
			flusher.Flush()
			if ctx.Err() != nil {
				return
			}
		})
	})
	if err != nil {
		fmt.Fprintf(writer, "event: error\ndata: %s\n\n", jsonEscape(err.Error()))
		writer.Flush()
		flusher.Flush()
		return
	}
	fmt.Fprint(writer, "event: done\ndata: {}\n\n")
	writer.Flush()
	flusher.Flush()
}

func jsonEscape(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// --- listings ---

func (g *Gateway) handleListEmbedders(w http.ResponseWriter, r *http.Request) {
	ids := parseIDList(r.URL.Query().Get("ids"))
	embedders, err := g.catalog.ListEmbedders(r.Context(), ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"embedders": embedders})
}

func (g *Gateway) handleListRerankers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rerankers": g.registry.ListRerankers()})
}

func (g *Gateway) handleListLLMs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"llms": g.registry.ListLLMs()})
}

func parseIDList(raw string) []int64 {
	if raw == "" {
		return nil
	}
	var ids []int64
	var cur int64
	has := false
	for _, c := range raw {
		if c >= '0' && c <= '9' {
			cur = cur*10 + int64(c-'0')
			has = true
			continue
		}
		if has {
			ids = append(ids, cur)
			cur, has = 0, false
		}
	}
	if has {
		ids = append(ids, cur)
	}
	return ids
}

// --- health ---

func (g *Gateway) handleHealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
}

func (g *Gateway) handleHealthReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (g *Gateway) handleHealthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"gpu_utilization_pct": g.pressure.Utilization(),
		"shedding":            g.pressure.ShouldShed(g.cfg.GPUShedThreshold),
	})
}
