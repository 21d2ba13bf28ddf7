// Package worker implements the three job kinds dispatched over the work
// stream — collection extraction, dataset embedding, and visualization
// projection — behind one common harness (harness.go) that owns
// subscribe/semaphore/ack/nak/term plumbing so each job kind only supplies
// a decode-and-handle function.
package worker

import "time"

// TransformFileJob asks a worker to extract and chunk one file out of a
// Collection into a Dataset item.
type TransformFileJob struct {
	TransformID  int64  `json:"transform_id"`
	CollectionID int64  `json:"collection_id"`
	DatasetID    int64  `json:"dataset_id"`
	Owner        string `json:"owner"`
	ObjectKey    string `json:"object_key"`
	ContentType  string `json:"content_type"`
	BatchKey     string `json:"batch_key"`
}

// VectorEmbedJob asks a worker to embed one batch of dataset items with
// one embedder and upsert the results into the embedded dataset's
// collection.
type VectorEmbedJob struct {
	TransformID       int64   `json:"transform_id"`
	EmbeddedDatasetID int64   `json:"embedded_dataset_id"`
	DatasetID         int64   `json:"dataset_id"`
	EmbedderID        int64   `json:"embedder_id"`
	Owner             string  `json:"owner"`
	CollectionName    string  `json:"collection_name"`
	ItemIDs           []int64 `json:"item_ids"`
	BatchKey          string  `json:"batch_key"`
	RunID             string  `json:"run_id"`
}

// VisualizationTransformJob asks a worker to reduce and cluster one
// embedded dataset's vectors.
type VisualizationTransformJob struct {
	TransformID       int64  `json:"transform_id"`
	EmbeddedDatasetID int64  `json:"embedded_dataset_id"`
	Owner             string `json:"owner"`
	CollectionName    string `json:"collection_name"`
	BatchKey          string `json:"batch_key"`
}

// Result is the envelope every worker publishes back to the listener,
// regardless of job kind.
type Result struct {
	BatchKey          string    `json:"batch_key"`
	TransformID       int64     `json:"transform_id"`
	EmbedderID        int64     `json:"embedder_id,omitempty"`
	EmbeddedDatasetID int64     `json:"embedded_dataset_id,omitempty"`
	Owner             string    `json:"owner,omitempty"`
	Success           bool      `json:"success"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	ErrorKind         string    `json:"error_kind,omitempty"`
	ChunksOK          int       `json:"chunks_ok"`
	ChunksFailed      int       `json:"chunks_failed"`
	ProcessedAt       time.Time `json:"processed_at"`
	LastItemID        int64     `json:"last_item_id,omitempty"`
}
