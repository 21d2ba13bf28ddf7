// Package domain defines the core catalog entities, constants, and
// validation for the transform pipeline. It is the single source of truth
// for the shapes shared by the scanner, workers, reconciler, and listener.
package domain

import "time"

// BatchType distinguishes the three transform kinds that produce batches.
type BatchType string

const (
	BatchCollection    BatchType = "collection"
	BatchDataset       BatchType = "dataset"
	BatchVisualization BatchType = "visualization"
)

// BatchStatus is the lifecycle state of a pending_batches row.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchPublished BatchStatus = "published"
	BatchFailed    BatchStatus = "failed"
	BatchExpired   BatchStatus = "expired"
)

// TransformStatus is the derived, user-visible status of a transform.
type TransformStatus string

const (
	StatusIdle               TransformStatus = "idle"
	StatusPending            TransformStatus = "pending"
	StatusProcessing         TransformStatus = "processing"
	StatusCompleted          TransformStatus = "completed"
	StatusCompletedWithError TransformStatus = "completed_with_errors"
	StatusFailed             TransformStatus = "failed"
)

// Visibility controls cross-owner read access to a Collection.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Collection is an owner-scoped container of raw files.
type Collection struct {
	ID         int64      `db:"id" json:"id"`
	Owner      string     `db:"owner" json:"owner"`
	Title      string     `db:"title" json:"title"`
	Visibility Visibility `db:"visibility" json:"visibility"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Dataset is an owner-scoped sequence of items, each with chunks.
type Dataset struct {
	ID        int64     `db:"id" json:"id"`
	Owner     string    `db:"owner" json:"owner"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DatasetItem is one unit of a Dataset, holding ordered chunks.
type DatasetItem struct {
	ID        int64          `db:"id" json:"id"`
	DatasetID int64          `db:"dataset_id" json:"dataset_id"`
	Title     string         `db:"title" json:"title"`
	Metadata  map[string]any `db:"-" json:"metadata"`
	Chunks    []Chunk        `db:"-" json:"chunks"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Chunk is one content fragment of a DatasetItem.
type Chunk struct {
	Index    int            `json:"index"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// EmbedderProvider tags the remote embedding API shape an Embedder speaks.
type EmbedderProvider string

const (
	ProviderOpenAI EmbedderProvider = "openai"
	ProviderCohere EmbedderProvider = "cohere"
	ProviderOllama EmbedderProvider = "ollama"
)

// MaxBatchSize returns the provider's maximum chunks-per-request limit.
func (p EmbedderProvider) MaxBatchSize() int {
	switch p {
	case ProviderOpenAI:
		return 2048
	case ProviderCohere:
		return 96
	default:
		return 512
	}
}

// Embedder describes a remote embedding provider.
type Embedder struct {
	ID            int64            `db:"id" json:"id"`
	Owner         string           `db:"owner" json:"owner"`
	Provider      EmbedderProvider `db:"provider" json:"provider"`
	BaseURL       string           `db:"base_url" json:"base_url"`
	APIKeyCipher  []byte           `db:"api_key_cipher" json:"-"`
	Model         string           `db:"model" json:"model"`
	BatchSize     int              `db:"batch_size" json:"batch_size"`
	Dimensions    int              `db:"dimensions" json:"dimensions"`
}

// EffectiveBatchSize clamps the configured batch size to the provider max.
func (e Embedder) EffectiveBatchSize() int {
	max := e.Provider.MaxBatchSize()
	if e.BatchSize <= 0 || e.BatchSize > max {
		return max
	}
	return e.BatchSize
}

// Sentinel values for standalone Embedded Datasets (§3).
const SentinelID int64 = 0

// EmbeddedDataset is the materialization of (dataset × embedder) in the
// vector store, carrying the incremental-scan watermark.
type EmbeddedDataset struct {
	ID                    int64     `db:"id" json:"id"`
	Owner                 string    `db:"owner" json:"owner"`
	DatasetTransformID    int64     `db:"dataset_transform_id" json:"dataset_transform_id"`
	SourceDatasetID       int64     `db:"source_dataset_id" json:"source_dataset_id"`
	EmbedderID            int64     `db:"embedder_id" json:"embedder_id"`
	CollectionName        string    `db:"collection_name" json:"collection_name"`
	Dimensions            int       `db:"dimensions" json:"dimensions"`
	LastProcessedAt       time.Time `db:"last_processed_at" json:"last_processed_at"`
	LastProcessedItemID   int64     `db:"last_processed_item_id" json:"last_processed_item_id"`
	SourceDatasetVersion  time.Time `db:"source_dataset_version" json:"source_dataset_version"`
}

// IsStandalone reports whether this is a user-pushed embedding, not one
// produced by a Dataset Transform (§3: all three keys are the sentinel).
func (e EmbeddedDataset) IsStandalone() bool {
	return e.DatasetTransformID == SentinelID && e.SourceDatasetID == SentinelID && e.EmbedderID == SentinelID
}

// VectorCollectionName is a pure function of id + owner, stable for the
// embedded dataset's lifetime and never reused after deletion.
func VectorCollectionName(owner string, embeddedDatasetID int64) string {
	return "ed_" + owner + "_" + itoa(embeddedDatasetID)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// CollectionTransform maps a Collection to a Dataset via extraction+chunking.
type CollectionTransform struct {
	ID               int64          `db:"id" json:"id"`
	Owner            string         `db:"owner" json:"owner"`
	CollectionID     int64          `db:"collection_id" json:"collection_id"`
	DatasetID        int64          `db:"dataset_id" json:"dataset_id"`
	Enabled          bool           `db:"enabled" json:"enabled"`
	ExtractionConfig map[string]any `db:"-" json:"extraction_config"`
	ChunkingConfig   map[string]any `db:"-" json:"chunking_config"`
}

// DatasetTransform fans a Dataset out to N Embedders.
type DatasetTransform struct {
	ID          int64   `db:"id" json:"id"`
	Owner       string  `db:"owner" json:"owner"`
	DatasetID   int64   `db:"dataset_id" json:"dataset_id"`
	Enabled     bool    `db:"enabled" json:"enabled"`
	EmbedderIDs []int64 `db:"-" json:"embedder_ids"`
	CurrentRunID string `db:"current_run_id" json:"current_run_id"`
}

// VisualizationTransform projects an Embedded Dataset into reduced + topic
// vector collections.
type VisualizationTransform struct {
	ID                int64          `db:"id" json:"id"`
	Owner             string         `db:"owner" json:"owner"`
	EmbeddedDatasetID int64          `db:"embedded_dataset_id" json:"embedded_dataset_id"`
	Enabled           bool           `db:"enabled" json:"enabled"`
	UMAPConfig        map[string]any `db:"-" json:"umap_config"`
	HDBSCANConfig     map[string]any `db:"-" json:"hdbscan_config"`
	LLMConfig         map[string]any `db:"-" json:"llm_config,omitempty"`
}

// Batch is an immutable record of intent to enqueue one job.
type Batch struct {
	ID           int64       `db:"id" json:"id"`
	BatchType    BatchType   `db:"batch_type" json:"batch_type"`
	TransformID  int64       `db:"transform_id" json:"transform_id"`
	EmbedderID   int64       `db:"embedder_id" json:"embedder_id"`
	BatchKey     string      `db:"batch_key" json:"batch_key"`
	Payload      []byte      `db:"payload" json:"payload"`
	Status       BatchStatus `db:"status" json:"status"`
	RetryCount   int         `db:"retry_count" json:"retry_count"`
	NextRetryAt  time.Time   `db:"next_retry_at" json:"next_retry_at"`
	LastError    string      `db:"last_error" json:"last_error,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

const MaxRetries = 8

// TransformStats are the per-transform progress counters.
type TransformStats struct {
	TransformID           int64     `db:"transform_id" json:"transform_id"`
	EmbedderID            int64     `db:"embedder_id" json:"embedder_id"`
	DispatchedBatches     int64     `db:"dispatched_batches" json:"dispatched_batches"`
	DispatchedChunks      int64     `db:"dispatched_chunks" json:"dispatched_chunks"`
	SuccessfulBatches     int64     `db:"successful_batches" json:"successful_batches"`
	FailedBatches         int64     `db:"failed_batches" json:"failed_batches"`
	ProcessingBatches     int64     `db:"processing_batches" json:"processing_batches"`
	TotalChunksEmbedded   int64     `db:"total_chunks_embedded" json:"total_chunks_embedded"`
	TotalChunksFailed     int64     `db:"total_chunks_failed" json:"total_chunks_failed"`
	TotalChunksToProcess  int64     `db:"total_chunks_to_process" json:"total_chunks_to_process"`
	TotalChunksProcessing int64     `db:"total_chunks_processing" json:"total_chunks_processing"`
	FirstProcessingAt     time.Time `db:"first_processing_at" json:"first_processing_at"`
	LastProcessedAt       time.Time `db:"last_processed_at" json:"last_processed_at"`
	CurrentRunID          string    `db:"current_run_id" json:"current_run_id"`
}

// Status derives the user-visible transform status per spec §4.4.1.
func (s TransformStats) Status() TransformStatus {
	if s.ProcessingBatches > 0 {
		return StatusProcessing
	}
	if s.DispatchedBatches > 0 {
		done := s.SuccessfulBatches + s.FailedBatches
		if done >= s.DispatchedBatches {
			switch {
			case s.FailedBatches == 0:
				return StatusCompleted
			case s.SuccessfulBatches == 0:
				return StatusFailed
			default:
				return StatusCompletedWithError
			}
		}
		return StatusProcessing
	}
	// Legacy fallback on chunk counters.
	if s.TotalChunksToProcess > 0 {
		done := s.TotalChunksEmbedded + s.TotalChunksFailed
		if done >= s.TotalChunksToProcess {
			if s.TotalChunksFailed == 0 {
				return StatusCompleted
			}
			if s.TotalChunksEmbedded == 0 {
				return StatusFailed
			}
			return StatusCompletedWithError
		}
		if done > 0 {
			return StatusProcessing
		}
	}
	if s.FirstProcessingAt.IsZero() {
		return StatusIdle
	}
	return StatusPending
}

// Invariant checks successful+failed+processing <= dispatched (§3, §8).
func (s TransformStats) Invariant() bool {
	return s.SuccessfulBatches+s.FailedBatches+s.ProcessingBatches <= s.DispatchedBatches
}
