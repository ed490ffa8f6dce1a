// Package semantic is the sole owner of all Qdrant operations: collection
// lifecycle, idempotent per-record upserts, filtered similarity search and
// point deletion. Point IDs equal content record IDs, so re-running a job
// for the same record overwrites the same point.
package semantic

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore talks to Qdrant over gRPC.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	now         func() time.Time
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		now:         time.Now,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection with cosine distance if it doesn't
// exist yet. Safe to call on every startup.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
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
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert stores one embedding keyed by its content ID, overwriting any
// existing point for that ID. Wait=true so a completed job implies the point
// is searchable.
func (v *VectorStore) Upsert(ctx context.Context, rec VectorRecord) error {
	point := &pb.PointStruct{
		Id: &pb.PointId{
			PointIdOptions: &pb.PointId_Num{Num: uint64(rec.ID)},
		},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: rec.Vector},
			},
		},
		Payload: map[string]*pb.Value{
			"contentId":    {Kind: &pb.Value_IntegerValue{IntegerValue: rec.ID}},
			"title":        {Kind: &pb.Value_StringValue{StringValue: rec.Title}},
			"type":         {Kind: &pb.Value_StringValue{StringValue: rec.Type}},
			"labels":       listValue(rec.Labels),
			"combinedText": {Kind: &pb.Value_StringValue{StringValue: rec.CombinedText}},
			"updatedAt":    {Kind: &pb.Value_StringValue{StringValue: v.now().UTC().Format(time.RFC3339)}},
		},
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert point %d: %w", rec.ID, err)
	}
	return nil
}

// Search performs similarity search and returns content IDs with scores,
// ranked descending. The score threshold and payload filters are applied by
// Qdrant; payloads are not fetched.
func (v *VectorStore) Search(ctx context.Context, vector []float32, q Query) ([]Hit, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(limit),
	}
	if q.ScoreThreshold > 0 {
		threshold := q.ScoreThreshold
		req.ScoreThreshold = &threshold
	}
	if f := buildFilter(q); f != nil {
		req.Filter = f
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{
			ID:    int64(r.GetId().GetNum()),
			Score: r.GetScore(),
		}
	}
	return hits, nil
}

// Delete removes the point for a content ID. Deleting a missing point is not
// an error.
func (v *VectorStore) Delete(ctx context.Context, id int64) error {
	return v.DeleteMany(ctx, []int64{id})
}

// DeleteMany removes the points for a batch of content IDs.
func (v *VectorStore) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		points[i] = &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(id)}}
	}

	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: points},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete %d points: %w", len(ids), err)
	}
	return nil
}

// CollectionInfo returns point count and status for health reporting.
func (v *VectorStore) CollectionInfo(ctx context.Context) (*pb.CollectionInfo, error) {
	resp, err := v.collections.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: v.collection,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: collection info: %w", err)
	}
	return resp.GetResult(), nil
}

// buildFilter translates a Query into a Qdrant payload filter: exact match
// on type, any-match on labels. Returns nil when the query has no filters.
func buildFilter(q Query) *pb.Filter {
	var must []*pb.Condition

	if q.Type != "" {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "type",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keyword{Keyword: q.Type},
					},
				},
			},
		})
	}
	if len(q.Labels) > 0 {
		must = append(must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key: "labels",
					Match: &pb.Match{
						MatchValue: &pb.Match_Keywords{
							Keywords: &pb.RepeatedStrings{Strings: q.Labels},
						},
					},
				},
			},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

func listValue(items []string) *pb.Value {
	values := make([]*pb.Value, len(items))
	for i, s := range items {
		values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
	}
	return &pb.Value{
		Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}},
	}
}
