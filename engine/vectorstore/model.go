package vectorstore

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Content  string            `json:"content"`
	ItemID   string            `json:"item_id"`
	Meta     map[string]string `json:"meta"`
}

// Point is a single vector to upsert, identified by a deterministic UUID
// derived from its source (dataset_item_id, chunk_index) so repeated
// upserts of the same chunk are idempotent (§4.3.2).
type Point struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // content, item_id, chunk_index, and caller metadata
}
