package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FishySoftware/semantic-explorer/engine/domain"
)

// Memory is an in-process Store used by unit tests that exercise the
// scanner, worker, reconciler, and listener without a real Postgres
// instance. It applies the same SKIP LOCKED semantics as a single-process
// mutex, since there is only ever one caller in test scenarios.
type Memory struct {
	mu sync.Mutex

	collections  map[int64]domain.Collection
	datasets     map[int64]domain.Dataset
	items        map[int64][]domain.DatasetItem // by dataset id
	embedders    map[int64]domain.Embedder
	embedded     map[int64]domain.EmbeddedDataset
	colTransform map[int64]domain.CollectionTransform
	dsTransform  map[int64]domain.DatasetTransform
	vzTransform  map[int64]domain.VisualizationTransform
	stats        map[statsKey]domain.TransformStats
	batches      map[int64]domain.Batch

	nextID int64
}

type statsKey struct {
	transformID, embedderID int64
}

// NewMemory constructs an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{
		collections:  map[int64]domain.Collection{},
		datasets:     map[int64]domain.Dataset{},
		items:        map[int64][]domain.DatasetItem{},
		embedders:    map[int64]domain.Embedder{},
		embedded:     map[int64]domain.EmbeddedDataset{},
		colTransform: map[int64]domain.CollectionTransform{},
		dsTransform:  map[int64]domain.DatasetTransform{},
		vzTransform:  map[int64]domain.VisualizationTransform{},
		stats:        map[statsKey]domain.TransformStats{},
		batches:      map[int64]domain.Batch{},
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// --- seeding helpers for tests ---

func (m *Memory) SeedDataset(d domain.Dataset) domain.Dataset {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		d.ID = m.id()
	}
	m.datasets[d.ID] = d
	return d
}

func (m *Memory) SeedDatasetItems(datasetID int64, items []domain.DatasetItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[datasetID] = append(m.items[datasetID], items...)
}

func (m *Memory) SeedEmbedder(e domain.Embedder) domain.Embedder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		e.ID = m.id()
	}
	m.embedders[e.ID] = e
	return e
}

func (m *Memory) SeedDatasetTransform(t domain.DatasetTransform) domain.DatasetTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	m.dsTransform[t.ID] = t
	return t
}

func (m *Memory) SeedCollectionTransform(t domain.CollectionTransform) domain.CollectionTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	m.colTransform[t.ID] = t
	return t
}

func (m *Memory) SeedVisualizationTransform(t domain.VisualizationTransform) domain.VisualizationTransform {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	m.vzTransform[t.ID] = t
	return t
}

// --- CollectionStore ---

func (m *Memory) GetCollection(ctx context.Context, id int64) (domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[id]
	if !ok {
		return domain.Collection{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) CreateCollection(ctx context.Context, c domain.Collection) (domain.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id()
	c.CreatedAt = time.Now().UTC()
	m.collections[c.ID] = c
	return c, nil
}

func (m *Memory) DeleteCollection(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, id)
	return nil
}

// --- DatasetStore ---

func (m *Memory) GetDataset(ctx context.Context, id int64) (domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.datasets[id]
	if !ok {
		return domain.Dataset{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) CreateDataset(ctx context.Context, d domain.Dataset) (domain.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.id()
	d.CreatedAt = time.Now().UTC()
	d.UpdatedAt = d.CreatedAt
	m.datasets[d.ID] = d
	return d, nil
}

func (m *Memory) ListDatasetItemsSince(ctx context.Context, datasetID int64, since time.Time, sinceItemID int64, limit int) ([]domain.DatasetItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := append([]domain.DatasetItem(nil), m.items[datasetID]...)
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.Before(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	var out []domain.DatasetItem
	for _, it := range all {
		if it.UpdatedAt.After(since) || (it.UpdatedAt.Equal(since) && it.ID > sinceItemID) {
			out = append(out, it)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) GetDatasetItem(ctx context.Context, id int64) (domain.DatasetItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, items := range m.items {
		for _, it := range items {
			if it.ID == id {
				return it, nil
			}
		}
	}
	return domain.DatasetItem{}, ErrNotFound
}

func (m *Memory) UpsertDatasetItem(ctx context.Context, item domain.DatasetItem) (domain.DatasetItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == 0 {
		item.ID = m.id()
	}
	item.UpdatedAt = time.Now().UTC()

	items := m.items[item.DatasetID]
	for i, it := range items {
		if it.ID == item.ID {
			items[i] = item
			m.items[item.DatasetID] = items
			return item, nil
		}
	}
	m.items[item.DatasetID] = append(items, item)
	return item, nil
}

// --- EmbedderStore ---

func (m *Memory) GetEmbedder(ctx context.Context, id int64) (domain.Embedder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.embedders[id]
	if !ok {
		return domain.Embedder{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) ListEmbedders(ctx context.Context, ids []int64) ([]domain.Embedder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Embedder, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.embedders[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- EmbeddedDatasetStore ---

func (m *Memory) GetEmbeddedDataset(ctx context.Context, id int64) (domain.EmbeddedDataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ed, ok := m.embedded[id]
	if !ok {
		return domain.EmbeddedDataset{}, ErrNotFound
	}
	return ed, nil
}

func (m *Memory) UpsertEmbeddedDataset(ctx context.Context, ed domain.EmbeddedDataset) (domain.EmbeddedDataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.embedded {
		if existing.DatasetTransformID == ed.DatasetTransformID &&
			existing.SourceDatasetID == ed.SourceDatasetID &&
			existing.EmbedderID == ed.EmbedderID {
			ed.ID = id
			m.embedded[id] = ed
			return ed, nil
		}
	}
	ed.ID = m.id()
	m.embedded[ed.ID] = ed
	return ed, nil
}

func (m *Memory) AdvanceWatermark(ctx context.Context, id int64, at time.Time, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ed, ok := m.embedded[id]
	if !ok {
		return fmt.Errorf("catalog: advance watermark: %w", ErrNotFound)
	}
	if at.After(ed.LastProcessedAt) || (at.Equal(ed.LastProcessedAt) && itemID > ed.LastProcessedItemID) {
		ed.LastProcessedAt = at
		ed.LastProcessedItemID = itemID
		m.embedded[id] = ed
	}
	return nil
}

func (m *Memory) DeleteEmbeddedDataset(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.embedded, id)
	return nil
}

// --- TransformStore ---

func (m *Memory) ListEnabledCollectionTransforms(ctx context.Context) ([]domain.CollectionTransform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.CollectionTransform
	for _, t := range m.colTransform {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) GetCollectionTransform(ctx context.Context, id int64) (domain.CollectionTransform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.colTransform[id]
	if !ok {
		return domain.CollectionTransform{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListEnabledDatasetTransforms(ctx context.Context) ([]domain.DatasetTransform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DatasetTransform
	for _, t := range m.dsTransform {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) GetDatasetTransform(ctx context.Context, id int64) (domain.DatasetTransform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.dsTransform[id]
	if !ok {
		return domain.DatasetTransform{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListEnabledVisualizationTransforms(ctx context.Context) ([]domain.VisualizationTransform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.VisualizationTransform
	for _, t := range m.vzTransform {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) GetVisualizationTransform(ctx context.Context, id int64) (domain.VisualizationTransform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.vzTransform[id]
	if !ok {
		return domain.VisualizationTransform{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) SetDatasetTransformRunID(ctx context.Context, id int64, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.dsTransform[id]
	if !ok {
		return ErrNotFound
	}
	t.CurrentRunID = runID
	m.dsTransform[id] = t
	return nil
}

func (m *Memory) GetStats(ctx context.Context, transformID, embedderID int64) (domain.TransformStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[statsKey{transformID, embedderID}]
	if !ok {
		return domain.TransformStats{TransformID: transformID, EmbedderID: embedderID}, nil
	}
	return s, nil
}

func (m *Memory) UpdateStats(ctx context.Context, mutate func(domain.TransformStats) domain.TransformStats, transformID, embedderID int64) (domain.TransformStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := statsKey{transformID, embedderID}
	cur := m.stats[key]
	if cur.TransformID == 0 && cur.EmbedderID == 0 {
		cur = domain.TransformStats{TransformID: transformID, EmbedderID: embedderID}
	}
	next := mutate(cur)
	m.stats[key] = next
	return next, nil
}

// --- BatchStore ---

func (m *Memory) CreateBatch(ctx context.Context, b domain.Batch) (domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.id()
	b.Status = domain.BatchPending
	b.CreatedAt = time.Now().UTC()
	if b.NextRetryAt.IsZero() {
		b.NextRetryAt = b.CreatedAt
	}
	m.batches[b.ID] = b
	return b, nil
}

func (m *Memory) MarkBatchPublished(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = domain.BatchPublished
	m.batches[id] = b
	return nil
}

func (m *Memory) MarkBatchResult(ctx context.Context, batchKey string, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, b := range m.batches {
		if b.BatchKey == batchKey {
			if success {
				b.Status = domain.BatchPublished
			} else {
				b.Status = domain.BatchFailed
			}
			b.LastError = errMsg
			m.batches[id] = b
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) SelectPendingForRetry(ctx context.Context, limit int) ([]domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var ids []int64
	for id, b := range m.batches {
		if b.Status == domain.BatchPending && !b.NextRetryAt.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return m.batches[ids[i]].NextRetryAt.Before(m.batches[ids[j]].NextRetryAt) })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Batch, len(ids))
	for i, id := range ids {
		out[i] = m.batches[id]
	}
	return out, nil
}

func (m *Memory) IncrementRetry(ctx context.Context, id int64, nextRetryAt time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.RetryCount++
	b.NextRetryAt = nextRetryAt
	b.LastError = lastErr
	m.batches[id] = b
	return nil
}

func (m *Memory) FailBatch(ctx context.Context, id int64, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.Status = domain.BatchFailed
	b.LastError = lastErr
	m.batches[id] = b
	return nil
}

func (m *Memory) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.batches {
		if (b.Status == domain.BatchPublished || b.Status == domain.BatchFailed) && b.CreatedAt.Before(cutoff) {
			delete(m.batches, id)
			n++
		}
	}
	return n, nil
}
