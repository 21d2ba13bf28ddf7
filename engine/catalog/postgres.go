package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

// Postgres is the production Store implementation, backed by sqlx over
// database/sql and lib/pq.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to dsn and verifies the connection with a ping.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an already-open *sqlx.DB, used by tests against a
// disposable schema.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error { return p.db.Close() }

type collectionRow struct {
	domain.Collection
}

func (p *Postgres) GetCollection(ctx context.Context, id int64) (domain.Collection, error) {
	var c domain.Collection
	err := p.db.GetContext(ctx, &c, `
		SELECT id, owner, title, visibility, created_at
		FROM collections WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return domain.Collection{}, ErrNotFound
	}
	if err != nil {
		return domain.Collection{}, fmt.Errorf("catalog: get collection %d: %w", id, err)
	}
	return c, nil
}

func (p *Postgres) CreateCollection(ctx context.Context, c domain.Collection) (domain.Collection, error) {
	err := p.db.GetContext(ctx, &c.ID, `
		INSERT INTO collections (owner, title, visibility, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id`, c.Owner, c.Title, c.Visibility)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("catalog: create collection: %w", err)
	}
	return p.GetCollection(ctx, c.ID)
}

func (p *Postgres) DeleteCollection(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete collection %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) GetDataset(ctx context.Context, id int64) (domain.Dataset, error) {
	var d domain.Dataset
	err := p.db.GetContext(ctx, &d, `
		SELECT id, owner, title, created_at, updated_at
		FROM datasets WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return domain.Dataset{}, ErrNotFound
	}
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("catalog: get dataset %d: %w", id, err)
	}
	return d, nil
}

func (p *Postgres) CreateDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	err := p.db.GetContext(ctx, &d.ID, `
		INSERT INTO datasets (owner, title, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id`, d.Owner, d.Title)
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("catalog: create dataset: %w", err)
	}
	return p.GetDataset(ctx, d.ID)
}

type datasetItemRow struct {
	ID        int64           `db:"id"`
	DatasetID int64           `db:"dataset_id"`
	Title     string          `db:"title"`
	Metadata  json.RawMessage `db:"metadata"`
	Chunks    json.RawMessage `db:"chunks"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// ListDatasetItemsSince is the incremental scan cursor: items updated
// strictly after (since, sinceItemID) in that lexical order, ascending,
// capped at limit (§4.1 scan_once).
func (p *Postgres) ListDatasetItemsSince(ctx context.Context, datasetID int64, since time.Time, sinceItemID int64, limit int) ([]domain.DatasetItem, error) {
	var rows []datasetItemRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, dataset_id, title, metadata, chunks, updated_at
		FROM dataset_items
		WHERE dataset_id = $1
		  AND (updated_at, id) > ($2, $3)
		ORDER BY updated_at, id
		LIMIT $4`, datasetID, since, sinceItemID, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list dataset items: %w", err)
	}

	out := make([]domain.DatasetItem, len(rows))
	for i, r := range rows {
		item := domain.DatasetItem{ID: r.ID, DatasetID: r.DatasetID, Title: r.Title, UpdatedAt: r.UpdatedAt}
		if len(r.Metadata) > 0 {
			json.Unmarshal(r.Metadata, &item.Metadata)
		}
		if len(r.Chunks) > 0 {
			json.Unmarshal(r.Chunks, &item.Chunks)
		}
		out[i] = item
	}
	return out, nil
}

func (p *Postgres) GetDatasetItem(ctx context.Context, id int64) (domain.DatasetItem, error) {
	var r datasetItemRow
	err := p.db.GetContext(ctx, &r, `
		SELECT id, dataset_id, title, metadata, chunks, updated_at
		FROM dataset_items WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return domain.DatasetItem{}, ErrNotFound
	}
	if err != nil {
		return domain.DatasetItem{}, fmt.Errorf("catalog: get dataset item %d: %w", id, err)
	}
	item := domain.DatasetItem{ID: r.ID, DatasetID: r.DatasetID, Title: r.Title, UpdatedAt: r.UpdatedAt}
	if len(r.Metadata) > 0 {
		json.Unmarshal(r.Metadata, &item.Metadata)
	}
	if len(r.Chunks) > 0 {
		json.Unmarshal(r.Chunks, &item.Chunks)
	}
	return item, nil
}

func (p *Postgres) UpsertDatasetItem(ctx context.Context, item domain.DatasetItem) (domain.DatasetItem, error) {
	metaJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return domain.DatasetItem{}, fmt.Errorf("catalog: marshal item metadata: %w", err)
	}
	chunksJSON, err := json.Marshal(item.Chunks)
	if err != nil {
		return domain.DatasetItem{}, fmt.Errorf("catalog: marshal item chunks: %w", err)
	}

	if item.ID == 0 {
		err = p.db.GetContext(ctx, &item.ID, `
			INSERT INTO dataset_items (dataset_id, title, metadata, chunks, updated_at)
			VALUES ($1, $2, $3, $4, now())
			RETURNING id`, item.DatasetID, item.Title, metaJSON, chunksJSON)
	} else {
		_, err = p.db.ExecContext(ctx, `
			UPDATE dataset_items
			SET title = $2, metadata = $3, chunks = $4, updated_at = now()
			WHERE id = $1`, item.ID, item.Title, metaJSON, chunksJSON)
	}
	if err != nil {
		return domain.DatasetItem{}, fmt.Errorf("catalog: upsert dataset item: %w", err)
	}
	return p.GetDatasetItem(ctx, item.ID)
}

type embedderRow struct {
	ID           int64  `db:"id"`
	Owner        string `db:"owner"`
	Provider     string `db:"provider"`
	BaseURL      string `db:"base_url"`
	APIKeyCipher []byte `db:"api_key_cipher"`
	Model        string `db:"model"`
	BatchSize    int    `db:"batch_size"`
	Dimensions   int    `db:"dimensions"`
}

func (r embedderRow) toDomain() domain.Embedder {
	return domain.Embedder{
		ID: r.ID, Owner: r.Owner, Provider: domain.EmbedderProvider(r.Provider),
		BaseURL: r.BaseURL, APIKeyCipher: r.APIKeyCipher, Model: r.Model,
		BatchSize: r.BatchSize, Dimensions: r.Dimensions,
	}
}

func (p *Postgres) GetEmbedder(ctx context.Context, id int64) (domain.Embedder, error) {
	var r embedderRow
	err := p.db.GetContext(ctx, &r, `
		SELECT id, owner, provider, base_url, api_key_cipher, model, batch_size, dimensions
		FROM embedders WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return domain.Embedder{}, ErrNotFound
	}
	if err != nil {
		return domain.Embedder{}, fmt.Errorf("catalog: get embedder %d: %w", id, err)
	}
	return r.toDomain(), nil
}

func (p *Postgres) ListEmbedders(ctx context.Context, ids []int64) ([]domain.Embedder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []embedderRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, owner, provider, base_url, api_key_cipher, model, batch_size, dimensions
		FROM embedders WHERE id = ANY($1)`, pq.Int64Array(ids))
	if err != nil {
		return nil, fmt.Errorf("catalog: list embedders: %w", err)
	}
	out := make([]domain.Embedder, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (p *Postgres) GetEmbeddedDataset(ctx context.Context, id int64) (domain.EmbeddedDataset, error) {
	var ed domain.EmbeddedDataset
	err := p.db.GetContext(ctx, &ed, `
		SELECT id, owner, dataset_transform_id, source_dataset_id, embedder_id,
		       collection_name, dimensions, last_processed_at, last_processed_item_id,
		       source_dataset_version
		FROM embedded_datasets WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return domain.EmbeddedDataset{}, ErrNotFound
	}
	if err != nil {
		return domain.EmbeddedDataset{}, fmt.Errorf("catalog: get embedded dataset %d: %w", id, err)
	}
	return ed, nil
}

func (p *Postgres) UpsertEmbeddedDataset(ctx context.Context, ed domain.EmbeddedDataset) (domain.EmbeddedDataset, error) {
	err := p.db.GetContext(ctx, &ed.ID, `
		INSERT INTO embedded_datasets (
			owner, dataset_transform_id, source_dataset_id, embedder_id,
			collection_name, dimensions, last_processed_at, last_processed_item_id,
			source_dataset_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (dataset_transform_id, source_dataset_id, embedder_id)
		DO UPDATE SET collection_name = EXCLUDED.collection_name,
		              dimensions = EXCLUDED.dimensions
		RETURNING id`,
		ed.Owner, ed.DatasetTransformID, ed.SourceDatasetID, ed.EmbedderID,
		ed.CollectionName, ed.Dimensions, ed.LastProcessedAt, ed.LastProcessedItemID,
		ed.SourceDatasetVersion)
	if err != nil {
		return domain.EmbeddedDataset{}, fmt.Errorf("catalog: upsert embedded dataset: %w", err)
	}
	return p.GetEmbeddedDataset(ctx, ed.ID)
}

// AdvanceWatermark persists the (timestamp, item_id) cursor only if it
// moves the watermark forward, guarding against a stale listener
// callback regressing progress (§3 invariant).
func (p *Postgres) AdvanceWatermark(ctx context.Context, id int64, at time.Time, itemID int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE embedded_datasets
		SET last_processed_at = $2, last_processed_item_id = $3
		WHERE id = $1
		  AND (last_processed_at, last_processed_item_id) < ($2, $3)`,
		id, at, itemID)
	if err != nil {
		return fmt.Errorf("catalog: advance watermark %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) DeleteEmbeddedDataset(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM embedded_datasets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: delete embedded dataset %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) ListEnabledCollectionTransforms(ctx context.Context) ([]domain.CollectionTransform, error) {
	var rows []struct {
		ID               int64           `db:"id"`
		Owner            string          `db:"owner"`
		CollectionID     int64           `db:"collection_id"`
		DatasetID        int64           `db:"dataset_id"`
		Enabled          bool            `db:"enabled"`
		ExtractionConfig json.RawMessage `db:"extraction_config"`
		ChunkingConfig   json.RawMessage `db:"chunking_config"`
	}
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, owner, collection_id, dataset_id, enabled, extraction_config, chunking_config
		FROM collection_transforms WHERE enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list collection transforms: %w", err)
	}
	out := make([]domain.CollectionTransform, len(rows))
	for i, r := range rows {
		t := domain.CollectionTransform{ID: r.ID, Owner: r.Owner, CollectionID: r.CollectionID, DatasetID: r.DatasetID, Enabled: r.Enabled}
		json.Unmarshal(r.ExtractionConfig, &t.ExtractionConfig)
		json.Unmarshal(r.ChunkingConfig, &t.ChunkingConfig)
		out[i] = t
	}
	return out, nil
}

func (p *Postgres) GetCollectionTransform(ctx context.Context, id int64) (domain.CollectionTransform, error) {
	all, err := p.ListEnabledCollectionTransforms(ctx)
	if err != nil {
		return domain.CollectionTransform{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.CollectionTransform{}, ErrNotFound
}

func (p *Postgres) ListEnabledDatasetTransforms(ctx context.Context) ([]domain.DatasetTransform, error) {
	var rows []struct {
		ID           int64          `db:"id"`
		Owner        string         `db:"owner"`
		DatasetID    int64          `db:"dataset_id"`
		Enabled      bool           `db:"enabled"`
		EmbedderIDs  pq.Int64Array  `db:"embedder_ids"`
		CurrentRunID string         `db:"current_run_id"`
	}
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, owner, dataset_id, enabled, embedder_ids, current_run_id
		FROM dataset_transforms WHERE enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list dataset transforms: %w", err)
	}
	out := make([]domain.DatasetTransform, len(rows))
	for i, r := range rows {
		out[i] = domain.DatasetTransform{ID: r.ID, Owner: r.Owner, DatasetID: r.DatasetID, Enabled: r.Enabled, EmbedderIDs: []int64(r.EmbedderIDs), CurrentRunID: r.CurrentRunID}
	}
	return out, nil
}

func (p *Postgres) GetDatasetTransform(ctx context.Context, id int64) (domain.DatasetTransform, error) {
	all, err := p.ListEnabledDatasetTransforms(ctx)
	if err != nil {
		return domain.DatasetTransform{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.DatasetTransform{}, ErrNotFound
}

func (p *Postgres) SetDatasetTransformRunID(ctx context.Context, id int64, runID string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE dataset_transforms SET current_run_id = $2 WHERE id = $1`, id, runID)
	if err != nil {
		return fmt.Errorf("catalog: set run id %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) ListEnabledVisualizationTransforms(ctx context.Context) ([]domain.VisualizationTransform, error) {
	var rows []struct {
		ID                int64           `db:"id"`
		Owner             string          `db:"owner"`
		EmbeddedDatasetID int64           `db:"embedded_dataset_id"`
		Enabled           bool            `db:"enabled"`
		UMAPConfig        json.RawMessage `db:"umap_config"`
		HDBSCANConfig     json.RawMessage `db:"hdbscan_config"`
		LLMConfig         json.RawMessage `db:"llm_config"`
	}
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, owner, embedded_dataset_id, enabled, umap_config, hdbscan_config, llm_config
		FROM visualization_transforms WHERE enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list visualization transforms: %w", err)
	}
	out := make([]domain.VisualizationTransform, len(rows))
	for i, r := range rows {
		t := domain.VisualizationTransform{ID: r.ID, Owner: r.Owner, EmbeddedDatasetID: r.EmbeddedDatasetID, Enabled: r.Enabled}
		json.Unmarshal(r.UMAPConfig, &t.UMAPConfig)
		json.Unmarshal(r.HDBSCANConfig, &t.HDBSCANConfig)
		if len(r.LLMConfig) > 0 {
			json.Unmarshal(r.LLMConfig, &t.LLMConfig)
		}
		out[i] = t
	}
	return out, nil
}

func (p *Postgres) GetVisualizationTransform(ctx context.Context, id int64) (domain.VisualizationTransform, error) {
	all, err := p.ListEnabledVisualizationTransforms(ctx)
	if err != nil {
		return domain.VisualizationTransform{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.VisualizationTransform{}, ErrNotFound
}

func (p *Postgres) GetStats(ctx context.Context, transformID, embedderID int64) (domain.TransformStats, error) {
	var s domain.TransformStats
	err := p.db.GetContext(ctx, &s, `
		SELECT transform_id, embedder_id, dispatched_batches, dispatched_chunks,
		       successful_batches, failed_batches, processing_batches,
		       total_chunks_embedded, total_chunks_failed, total_chunks_to_process,
		       total_chunks_processing,
		       first_processing_at, last_processed_at, current_run_id
		FROM transform_stats WHERE transform_id = $1 AND embedder_id = $2`, transformID, embedderID)
	if err == sql.ErrNoRows {
		return domain.TransformStats{TransformID: transformID, EmbedderID: embedderID}, nil
	}
	if err != nil {
		return domain.TransformStats{}, fmt.Errorf("catalog: get stats %d/%d: %w", transformID, embedderID, err)
	}
	return s, nil
}

// UpdateStats applies mutate to the current row inside a transaction,
// holding a row lock for the duration so concurrent result-listener
// callbacks for the same transform serialize instead of lost-updating
// each other's counters (§5).
func (p *Postgres) UpdateStats(ctx context.Context, mutate func(domain.TransformStats) domain.TransformStats, transformID, embedderID int64) (domain.TransformStats, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.TransformStats{}, fmt.Errorf("catalog: begin: %w", err)
	}
	defer tx.Rollback()

	var cur domain.TransformStats
	err = tx.GetContext(ctx, &cur, `
		SELECT transform_id, embedder_id, dispatched_batches, dispatched_chunks,
		       successful_batches, failed_batches, processing_batches,
		       total_chunks_embedded, total_chunks_failed, total_chunks_to_process,
		       total_chunks_processing,
		       first_processing_at, last_processed_at, current_run_id
		FROM transform_stats WHERE transform_id = $1 AND embedder_id = $2
		FOR UPDATE`, transformID, embedderID)
	if err == sql.ErrNoRows {
		cur = domain.TransformStats{TransformID: transformID, EmbedderID: embedderID}
	} else if err != nil {
		return domain.TransformStats{}, fmt.Errorf("catalog: lock stats %d/%d: %w", transformID, embedderID, err)
	}

	next := mutate(cur)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transform_stats (
			transform_id, embedder_id, dispatched_batches, dispatched_chunks,
			successful_batches, failed_batches, processing_batches,
			total_chunks_embedded, total_chunks_failed, total_chunks_to_process,
			total_chunks_processing,
			first_processing_at, last_processed_at, current_run_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (transform_id, embedder_id) DO UPDATE SET
			dispatched_batches = EXCLUDED.dispatched_batches,
			dispatched_chunks = EXCLUDED.dispatched_chunks,
			successful_batches = EXCLUDED.successful_batches,
			failed_batches = EXCLUDED.failed_batches,
			processing_batches = EXCLUDED.processing_batches,
			total_chunks_embedded = EXCLUDED.total_chunks_embedded,
			total_chunks_failed = EXCLUDED.total_chunks_failed,
			total_chunks_to_process = EXCLUDED.total_chunks_to_process,
			total_chunks_processing = EXCLUDED.total_chunks_processing,
			first_processing_at = EXCLUDED.first_processing_at,
			last_processed_at = EXCLUDED.last_processed_at,
			current_run_id = EXCLUDED.current_run_id`,
		next.TransformID, next.EmbedderID, next.DispatchedBatches, next.DispatchedChunks,
		next.SuccessfulBatches, next.FailedBatches, next.ProcessingBatches,
		next.TotalChunksEmbedded, next.TotalChunksFailed, next.TotalChunksToProcess,
		next.TotalChunksProcessing,
		next.FirstProcessingAt, next.LastProcessedAt, next.CurrentRunID)
	if err != nil {
		return domain.TransformStats{}, fmt.Errorf("catalog: upsert stats: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.TransformStats{}, fmt.Errorf("catalog: commit stats: %w", err)
	}
	return next, nil
}

func (p *Postgres) CreateBatch(ctx context.Context, b domain.Batch) (domain.Batch, error) {
	err := p.db.GetContext(ctx, &b.ID, `
		INSERT INTO pending_batches (batch_type, transform_id, embedder_id, batch_key, payload, status, retry_count, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, now(), now())
		RETURNING id`, b.BatchType, b.TransformID, b.EmbedderID, b.BatchKey, b.Payload, domain.BatchPending)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("catalog: create batch: %w", err)
	}
	return b, nil
}

func (p *Postgres) MarkBatchPublished(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `UPDATE pending_batches SET status = $2 WHERE id = $1`, id, domain.BatchPublished)
	if err != nil {
		return fmt.Errorf("catalog: mark published %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) MarkBatchResult(ctx context.Context, batchKey string, success bool, errMsg string) error {
	status := domain.BatchPublished
	if !success {
		status = domain.BatchFailed
	}
	_, err := p.db.ExecContext(ctx, `
		UPDATE pending_batches SET status = $2, last_error = $3 WHERE batch_key = $1`,
		batchKey, status, errMsg)
	if err != nil {
		return fmt.Errorf("catalog: mark result %s: %w", batchKey, err)
	}
	return nil
}

// SelectPendingForRetry locks the next batch of due rows with
// SKIP LOCKED so that running multiple reconciler instances is safe
// without any external coordination (§4.2, §5).
func (p *Postgres) SelectPendingForRetry(ctx context.Context, limit int) ([]domain.Batch, error) {
	var rows []domain.Batch
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, batch_type, transform_id, embedder_id, batch_key, payload,
		       status, retry_count, next_retry_at, last_error, created_at
		FROM pending_batches
		WHERE status = $1 AND next_retry_at <= now()
		ORDER BY next_retry_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, domain.BatchPending, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: select pending: %w", err)
	}
	return rows, nil
}

func (p *Postgres) IncrementRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastErr string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE pending_batches
		SET retry_count = retry_count + 1, next_retry_at = $2, last_error = $3
		WHERE id = $1`, id, nextRetryAt, lastErr)
	if err != nil {
		return fmt.Errorf("catalog: increment retry %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) FailBatch(ctx context.Context, id int64, lastErr string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE pending_batches SET status = $2, last_error = $3 WHERE id = $1`,
		id, domain.BatchFailed, lastErr)
	if err != nil {
		return fmt.Errorf("catalog: fail batch %d: %w", id, err)
	}
	return nil
}

func (p *Postgres) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM pending_batches
		WHERE status IN ($1, $2) AND created_at < $3`,
		domain.BatchPublished, domain.BatchFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("catalog: gc pending batches: %w", err)
	}
	return res.RowsAffected()
}
