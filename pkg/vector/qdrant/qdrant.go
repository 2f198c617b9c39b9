// Package qdrant implements the remote document-store collaborator. It is
// a last-resort retrieval tier and a one-way export target — never the
// primary store. All operations are scoped by owner payload.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	qdrantgo "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/vector"
)

// Config holds configuration for the remote store client.
type Config struct {
	Host       string
	Port       int
	Collection string
	Dimensions uint
}

// Remote wraps a qdrant collection of chunk records.
type Remote struct {
	client     *qdrantgo.Client
	collection string
	dims       uint
	logger     *zap.Logger
}

// New connects to qdrant and ensures the chunk collection exists.
func New(ctx context.Context, c Config, logger *zap.Logger) (*Remote, error) {
	if c.Collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	client, err := qdrantgo.NewClient(&qdrantgo.Config{
		Host: c.Host,
		Port: c.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to qdrant: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrConnection, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrantgo.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrantgo.NewVectorsConfig(&qdrantgo.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrantgo.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: creating collection: %v", vector.ErrConnection, err)
		}
	}

	logger.Info("qdrant remote store connected",
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
		zap.String("collection", c.Collection),
	)

	return &Remote{
		client:     client,
		collection: c.Collection,
		dims:       c.Dimensions,
		logger:     logger,
	}, nil
}

// UpsertChunks uploads completed chunks in one batched call. Chunks without
// a valid embedding are skipped.
func (r *Remote) UpsertChunks(ctx context.Context, chunks []vector.Chunk) error {
	points := make([]*qdrantgo.PointStruct, 0, len(chunks))
	for i := range chunks {
		chunk := &chunks[i]
		if vector.ValidateDims(chunk.Embedding, r.dims) != nil {
			continue
		}
		points = append(points, &qdrantgo.PointStruct{
			Id:      qdrantgo.NewIDUUID(chunk.ID),
			Vectors: qdrantgo.NewVectors(chunk.Embedding...),
			Payload: qdrantgo.NewValueMap(map[string]any{
				"owner_id":    chunk.OwnerID,
				"source_name": chunk.SourceName,
				"chunk_index": int64(chunk.SequenceIndex),
				"text":        chunk.Text,
				"created_at":  chunk.CreatedAt.Unix(),
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := r.client.Upsert(ctx, &qdrantgo.UpsertPoints{
		CollectionName: r.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	r.logger.Debug("uploaded chunks to remote store", zap.Int("count", len(points)))
	return nil
}

// Search runs an owner-scoped similarity query against the remote
// collection.
func (r *Remote) Search(ctx context.Context, ownerID string, query []float32, topK int) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 10
	}
	if err := vector.ValidateDims(query, r.dims); err != nil {
		return nil, err
	}

	hits, err := r.client.Query(ctx, &qdrantgo.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrantgo.NewQuery(query...),
		Limit:          qdrantgo.PtrOf(uint64(topK)),
		Filter: &qdrantgo.Filter{
			Must: []*qdrantgo.Condition{
				qdrantgo.NewMatch("owner_id", ownerID),
			},
		},
		WithPayload: qdrantgo.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying remote store: %w", err)
	}

	results := make([]vector.Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, vector.Result{
			Chunk: chunkFromPayload(hit.Payload),
			Score: hit.Score,
		})
	}
	return results, nil
}

// RecentByOwner is the simple recency-ordered bounded read: scroll the
// owner's points and return the newest first.
func (r *Remote) RecentByOwner(ctx context.Context, ownerID string, limit int) ([]vector.Chunk, error) {
	if limit <= 0 {
		limit = 50
	}

	points, err := r.client.Scroll(ctx, &qdrantgo.ScrollPoints{
		CollectionName: r.collection,
		Filter: &qdrantgo.Filter{
			Must: []*qdrantgo.Condition{
				qdrantgo.NewMatch("owner_id", ownerID),
			},
		},
		Limit:       qdrantgo.PtrOf(uint32(limit)),
		WithPayload: qdrantgo.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scrolling remote store: %w", err)
	}

	chunks := make([]vector.Chunk, 0, len(points))
	for _, point := range points {
		chunks = append(chunks, chunkFromPayload(point.Payload))
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].CreatedAt.After(chunks[j].CreatedAt)
	})
	return chunks, nil
}

// DeleteOwner removes every remote point belonging to the owner.
func (r *Remote) DeleteOwner(ctx context.Context, ownerID string) error {
	_, err := r.client.Delete(ctx, &qdrantgo.DeletePoints{
		CollectionName: r.collection,
		Points: qdrantgo.NewPointsSelectorFilter(&qdrantgo.Filter{
			Must: []*qdrantgo.Condition{
				qdrantgo.NewMatch("owner_id", ownerID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("deleting remote points: %w", err)
	}
	return nil
}

// Close terminates the underlying gRPC connection.
func (r *Remote) Close() error {
	return r.client.Close()
}

func chunkFromPayload(payload map[string]*qdrantgo.Value) vector.Chunk {
	chunk := vector.Chunk{
		OwnerID:    payload["owner_id"].GetStringValue(),
		SourceName: payload["source_name"].GetStringValue(),
		Text:       payload["text"].GetStringValue(),
		Status:     vector.StatusCompleted,
	}
	chunk.SequenceIndex = int(payload["chunk_index"].GetIntegerValue())
	if ts := payload["created_at"].GetIntegerValue(); ts > 0 {
		chunk.CreatedAt = time.Unix(ts, 0)
	}
	return chunk
}
