// Package chromem provides the non-persistent chunk driver backed by
// chromem-go, a pure Go embedded vector database. It is the tier the store
// falls back to when the durable sqlite-vec database cannot be opened;
// durability then comes entirely from the key-value mirror.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/vector"
)

// Driver implements vector.Driver in process memory.
// Each owner gets its own collection for namespace isolation; a side table
// of rows backs the listing and delete operations chromem does not expose.
type Driver struct {
	db     *chromemgo.DB
	dims   uint
	logger *zap.Logger

	mu          sync.RWMutex
	collections map[string]*chromemgo.Collection
	rows        map[string]map[string]vector.Chunk // owner -> key -> chunk
}

// New creates an in-memory chromem driver.
func New(dims uint, logger *zap.Logger) (*Driver, error) {
	if dims == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}

	return &Driver{
		db:          chromemgo.NewDB(),
		dims:        dims,
		logger:      logger,
		collections: make(map[string]*chromemgo.Collection),
		rows:        make(map[string]map[string]vector.Chunk),
	}, nil
}

func (d *Driver) collection(owner string) (*chromemgo.Collection, error) {
	d.mu.RLock()
	col, ok := d.collections[owner]
	d.mu.RUnlock()
	if ok {
		return col, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if col, ok := d.collections[owner]; ok {
		return col, nil
	}

	name := "owner_" + owner
	if owner == "" {
		name = "global"
	}

	// Embeddings are always provided by the caller, so no embedding or
	// distance function is configured (cosine is the default).
	col, err := d.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection for owner %s: %w", owner, err)
	}
	d.collections[owner] = col
	return col, nil
}

func chunkKey(c *vector.Chunk) string {
	return fmt.Sprintf("%s::%s::%d", c.OwnerID, c.SourceName, c.SequenceIndex)
}

// Upsert writes or replaces chunks keyed by (owner, source, index).
// Chunks with wrong-dimension embeddings are skipped, the rest proceed.
func (d *Driver) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	for i := range chunks {
		chunk := chunks[i]
		if chunk.Embedding != nil {
			if err := vector.ValidateDims(chunk.Embedding, d.dims); err != nil {
				d.logger.Warn("skipping chunk with wrong-dimension embedding",
					zap.String("chunk_id", chunk.ID),
					zap.Int("components", len(chunk.Embedding)),
				)
				continue
			}
			if chunk.Status == "" {
				chunk.Status = vector.StatusCompleted
			}
		} else if chunk.Status == "" {
			chunk.Status = vector.StatusPending
		}

		key := chunkKey(&chunk)

		if chunk.Embedding != nil {
			col, err := d.collection(chunk.OwnerID)
			if err != nil {
				return err
			}
			doc := chromemgo.Document{
				ID:        key,
				Content:   chunk.Text,
				Embedding: chunk.Embedding,
				Metadata: map[string]string{
					"chunk_id": chunk.ID,
					"source":   chunk.SourceName,
				},
			}
			if err := col.AddDocument(ctx, doc); err != nil {
				return fmt.Errorf("adding document %s: %w", key, err)
			}
		}

		d.mu.Lock()
		if d.rows[chunk.OwnerID] == nil {
			d.rows[chunk.OwnerID] = make(map[string]vector.Chunk)
		}
		d.rows[chunk.OwnerID][key] = chunk
		d.mu.Unlock()
	}
	return nil
}

// Search queries the owner's collection and applies the same lexical bonus
// the brute-force sqlite path uses, so ranking semantics match across tiers.
func (d *Driver) Search(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]vector.Result, error) {
	if topK <= 0 {
		topK = 10
	}
	if err := vector.ValidateDims(query, d.dims); err != nil {
		return nil, err
	}

	d.mu.RLock()
	col, ok := d.collections[ownerID]
	d.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	// chromem rejects nResults beyond the stored document count.
	k := topK
	if count := col.Count(); k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	hits, err := col.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	terms := strings.Fields(strings.ToLower(queryText))

	results := make([]vector.Result, 0, len(hits))
	for _, hit := range hits {
		d.mu.RLock()
		chunk, ok := d.rows[ownerID][hit.ID]
		d.mu.RUnlock()
		if !ok || chunk.Status != vector.StatusCompleted {
			continue
		}

		score := hit.Similarity
		lower := strings.ToLower(chunk.Text)
		for _, term := range terms {
			if len(term) >= 3 && strings.Contains(lower, term) {
				score += 0.05
			}
		}

		results = append(results, vector.Result{Chunk: chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

// ListByStatus returns the owner's chunks in the given status.
func (d *Driver) ListByStatus(_ context.Context, ownerID string, status vector.Status) ([]vector.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var chunks []vector.Chunk
	for _, chunk := range d.rows[ownerID] {
		if chunk.Status == status {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].SourceName != chunks[j].SourceName {
			return chunks[i].SourceName < chunks[j].SourceName
		}
		return chunks[i].SequenceIndex < chunks[j].SequenceIndex
	})
	return chunks, nil
}

// DeleteOwner removes the owner's collection and rows.
func (d *Driver) DeleteOwner(_ context.Context, ownerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.collections[ownerID]; ok {
		name := "owner_" + ownerID
		if ownerID == "" {
			name = "global"
		}
		if err := d.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("deleting collection for owner %s: %w", ownerID, err)
		}
		delete(d.collections, ownerID)
	}
	delete(d.rows, ownerID)
	return nil
}

// Meta computes per-owner aggregates on demand.
func (d *Driver) Meta(_ context.Context, ownerID string) (count int, totalBytes int64, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, chunk := range d.rows[ownerID] {
		count++
		totalBytes += int64(len(chunk.Text) + len(chunk.Embedding)*4)
	}
	return count, totalBytes, nil
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// Ensure Driver implements vector.Driver
var _ vector.Driver = (*Driver)(nil)
