// Package scanner periodically walks enabled transforms, finds the work
// each one still owes, and dispatches one job per unit of work onto the
// work stream — the only producer side of the pipeline.
package scanner

import "github.com/FishySoftware/semantic-explorer/engine/domain"

// maxChunksPerDatasetBatch caps how many chunks one VectorEmbedJob asks a
// worker to embed in a single call, independent of any one provider's
// request-size ceiling (that's provider_limits.go's concern downstream).
const maxChunksPerDatasetBatch = 200

// packDatasetItems greedily packs dataset items into batches bounded by
// total chunk count, so a handful of huge items don't get crammed into
// one oversized job and a long tail of tiny items isn't dispatched one
// job each.
func packDatasetItems(items []domain.DatasetItem, maxChunks int) [][]domain.DatasetItem {
	if maxChunks <= 0 {
		maxChunks = maxChunksPerDatasetBatch
	}
	var batches [][]domain.DatasetItem
	var current []domain.DatasetItem
	chunkCount := 0

	for _, item := range items {
		n := len(item.Chunks)
		if n == 0 {
			continue
		}
		if chunkCount > 0 && chunkCount+n > maxChunks {
			batches = append(batches, current)
			current = nil
			chunkCount = 0
		}
		current = append(current, item)
		chunkCount += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
