package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/FishySoftware/semantic-explorer/engine/catalog"
	"github.com/FishySoftware/semantic-explorer/engine/domain"
	"github.com/FishySoftware/semantic-explorer/engine/vectorstore"
)

// maxVisualizationPoints caps the single-link clustering pass, which is
// quadratic per merge step; larger embedded datasets should sample before
// visualizing rather than pay that cost in full.
const maxVisualizationPoints = 5000

// VisualizationDeps wires a Visualization Transform's reduce-and-cluster
// step to its backing stores.
type VisualizationDeps struct {
	Catalog    catalog.Store
	Vectors    *vectorstore.Registry
	QdrantAddr string
}

// NewVisualizationHandler builds the Handler for VisualizationTransformJob:
// pull every point out of the embedded dataset's collection, project to
// 2D, cluster, and upsert the projected points into a sibling
// "<collection>_viz" collection carrying cluster_id payload.
func NewVisualizationHandler(deps VisualizationDeps) Handler {
	return func(ctx context.Context, payload []byte) (Result, error) {
		job, err := decode[VisualizationTransformJob](payload)
		if err != nil {
			return Result{}, domain.Classify("visualization", domain.KindPoison, err)
		}

		src, err := deps.Vectors.Store(deps.QdrantAddr, job.CollectionName)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, fmt.Errorf("visualization: open source store: %w", err)
		}
		points, err := src.ScrollAll(ctx)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, fmt.Errorf("visualization: scroll %s: %w", job.CollectionName, err)
		}
		if len(points) == 0 {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, nil
		}
		if len(points) > maxVisualizationPoints {
			points = points[:maxVisualizationPoints]
		}

		vectors := make([][]float32, len(points))
		for i, p := range points {
			vectors[i] = p.Embedding
		}
		reduced := reducePCA(vectors, 2)
		labels := singleLinkCluster(reduced, clusterThreshold(reduced))

		vizCollection := job.CollectionName + "_viz"
		if err := deps.Vectors.EnsureCollection(ctx, deps.QdrantAddr, vizCollection, 2); err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, fmt.Errorf("visualization: ensure viz collection: %w", err)
		}
		dst, err := deps.Vectors.Store(deps.QdrantAddr, vizCollection)
		if err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, fmt.Errorf("visualization: open viz store: %w", err)
		}

		out := make([]vectorstore.Point, len(points))
		for i, p := range points {
			vec2d := make([]float32, len(reduced[i]))
			for j, v := range reduced[i] {
				vec2d[j] = float32(v)
			}
			pointID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s-viz-%s", job.CollectionName, p.ID))).String()
			payload := map[string]any{"cluster_id": labels[i], "source_point_id": p.ID}
			if content, ok := p.Payload["content"]; ok {
				payload["content"] = content
			}
			out[i] = vectorstore.Point{ID: pointID, Embedding: vec2d, Payload: payload}
		}
		if err := dst.Upsert(ctx, out); err != nil {
			return Result{BatchKey: job.BatchKey, TransformID: job.TransformID}, fmt.Errorf("visualization: upsert projection: %w", err)
		}

		return Result{BatchKey: job.BatchKey, TransformID: job.TransformID, ChunksOK: len(out)}, nil
	}
}

// clusterThreshold picks a merge-distance cutoff proportional to the
// spread of the reduced points, so the clusterer doesn't need a
// dataset-specific tuning knob.
func clusterThreshold(points [][]float64) float64 {
	if len(points) < 2 {
		return 0
	}
	var maxDist float64
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			if d := euclid(points[i], points[j]); d > maxDist {
				maxDist = d
			}
		}
	}
	return maxDist * 0.05
}
