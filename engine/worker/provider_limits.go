package worker

// splitBatch divides texts into groups no larger than max, preserving
// order, so a VectorEmbedJob whose item count exceeds one provider's
// per-request ceiling still completes in a single job (§6 dataset
// embedding: the scanner packs by chunk count, not provider limit).
func splitBatch[T any](items []T, max int) [][]T {
	if max <= 0 {
		return [][]T{items}
	}
	var out [][]T
	for i := 0; i < len(items); i += max {
		end := i + max
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
