// Package vector provides interfaces and implementations for chunk storage
// and similarity search.
package vector

import (
	"context"
	"time"
)

// Status marks a chunk's embedding lifecycle state.
type Status string

const (
	// StatusPending marks a chunk whose embedding has not been filled yet.
	StatusPending Status = "pending"

	// StatusCompleted marks a chunk with a valid stored embedding.
	StatusCompleted Status = "completed"
)

// Chunk is the atomic unit of retrieval: a bounded span of text plus its
// embedding vector. (OwnerID, SourceName, SequenceIndex) is unique —
// re-processing the same source overwrites, never duplicates.
type Chunk struct {
	ID            string
	OwnerID       string
	SourceName    string
	SequenceIndex int
	Text          string
	Embedding     []float32
	Status        Status
	CreatedAt     time.Time
}

// Result is a search hit with its similarity score (higher = more similar).
type Result struct {
	Chunk

	Score float32
}

// Driver handles storage and retrieval of chunks with their embeddings.
type Driver interface {
	// Upsert writes or replaces chunks by (owner, source, index).
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search finds the topK most similar completed chunks for the owner,
	// ordered by descending score. The query text feeds the lexical bonus
	// applied on the brute-force path.
	Search(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]Result, error)

	// ListByStatus returns the owner's chunks in the given status.
	ListByStatus(ctx context.Context, ownerID string, status Status) ([]Chunk, error)

	// DeleteOwner removes all chunks belonging to the owner.
	DeleteOwner(ctx context.Context, ownerID string) error

	// Close releases any resources held by the driver.
	Close() error
}
