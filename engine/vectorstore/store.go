// Package vectorstore wraps Qdrant as a per-embedded-dataset collection
// store. Unlike a single fixed collection, every Embedded Dataset owns its
// own Qdrant collection, so Store is parameterized on (url, collection)
// and cached per address by the Registry in cache.go.
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Store is the sole owner of Qdrant operations for one collection.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// dial opens a gRPC connection to the Qdrant address. Exposed for the
// Registry in cache.go, which owns the lifetime of the connection and
// shares it across Stores at the same address.
func dial(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: dial qdrant %s: %w", addr, err)
	}
	return conn, nil
}

// newStore builds a Store bound to collection over an existing connection.
func newStore(conn *grpc.ClientConn, collection string) *Store {
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}
}

// Exists reports whether the collection is already present in Qdrant.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("vectorstore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCollection creates the collection with the given vector
// dimensionality if it doesn't already exist. Idempotent.
func (s *Store) EnsureCollection(ctx context.Context, dims int) error {
	exists, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %s: %w", s.collection, err)
	}
	return nil
}

// DeleteCollection deletes the collection. Its only pipeline caller is
// the dataset worker's new-run wipe; deleting an Embedded Dataset from
// the catalog does not call it and leaves the collection in place.
func (s *Store) DeleteCollection(ctx context.Context) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: s.collection,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete collection %s: %w", s.collection, err)
	}
	return nil
}

// Upsert stores points into the collection, overwriting any existing
// point with the same ID (idempotent re-processing, §4.3.2).
func (s *Store) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	out := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		payload := make(map[string]*pb.Value, len(p.Payload))
		for k, val := range p.Payload {
			payload[k] = toValue(val)
		}

		out[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Embedding},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         out,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByItemID removes all points whose item_id payload equals itemID.
// No pipeline component calls it.
func (s *Store) DeleteByItemID(ctx context.Context, itemID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch("item_id", itemID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete by item_id %s: %w", itemID, err)
	}
	return nil
}

// Search performs k-NN similarity search.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]SearchResult, error) {
	return s.SearchFiltered(ctx, embedding, topK, nil)
}

// SearchFiltered performs similarity search with optional metadata filters,
// consumed by the inference gateway's /api/chat retrieval step.
func (s *Store) SearchFiltered(ctx context.Context, embedding []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	if len(filters) > 0 {
		must := make([]*pb.Condition, 0, len(filters))
		for k, val := range filters {
			must = append(must, fieldMatch(k, val))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		sr := SearchResult{
			ID:    r.GetId().GetUuid(),
			Score: r.GetScore(),
			Meta:  make(map[string]string),
		}
		for k, val := range r.GetPayload() {
			sv := val.GetStringValue()
			switch k {
			case "content":
				sr.Content = sv
			case "item_id":
				sr.ItemID = sv
			default:
				sr.Meta[k] = sv
			}
		}
		results[i] = sr
	}
	return results, nil
}

// ScrollAll retrieves every point and its vector in the collection, used
// by the visualization worker to materialize the full embedding matrix
// for dimensionality reduction. Pages through Qdrant's scroll cursor
// internally; callers get one flat slice back.
func (s *Store) ScrollAll(ctx context.Context) ([]Point, error) {
	var out []Point
	var offset *pb.PointId

	for {
		withVectors := true
		req := &pb.ScrollPoints{
			CollectionName: s.collection,
			Limit:          pbUint32(512),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: withVectors}},
		}
		if offset != nil {
			req.Offset = offset
		}

		resp, err := s.points.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: scroll: %w", err)
		}

		for _, rp := range resp.GetResult() {
			p := Point{
				ID:      rp.GetId().GetUuid(),
				Payload: make(map[string]any, len(rp.GetPayload())),
			}
			if v := rp.GetVectors().GetVector(); v != nil {
				p.Embedding = v.GetData()
			}
			for k, val := range rp.GetPayload() {
				p.Payload[k] = fromValue(val)
			}
			out = append(out, p)
		}

		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	return out, nil
}

func pbUint32(n uint32) *uint32 { return &n }

func fromValue(v *pb.Value) any {
	switch k := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return k.StringValue
	case *pb.Value_IntegerValue:
		return k.IntegerValue
	case *pb.Value_DoubleValue:
		return k.DoubleValue
	case *pb.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}

func toValue(val any) *pb.Value {
	switch tv := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
