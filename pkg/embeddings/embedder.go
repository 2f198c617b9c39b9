// Package embeddings provides text embedding capabilities.
package embeddings

import (
	"context"
	"errors"
)

// ErrModelLoad is returned when the inference engine fails to load. The
// failure is never cached: a subsequent call retries from scratch.
var ErrModelLoad = errors.New("failed to load the inference engine, retry")

// Embedder converts text into fixed-dimension vector embeddings.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// BatchEmbedder additionally embeds several texts in one call, preserving
// input order.
type BatchEmbedder interface {
	Embedder

	// EmbedBatch converts texts into embeddings, one per input, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Backend identifies which execution backend an embedder runs on.
type Backend string

const (
	// BackendAccelerated is the GPU-accelerated execution provider.
	BackendAccelerated Backend = "accelerated"

	// BackendFallback is the default CPU execution provider.
	BackendFallback Backend = "fallback"
)
