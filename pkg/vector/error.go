package vector

import "errors"

var (
	// ErrNotFound is returned when a chunk is not found in the store.
	ErrNotFound = errors.New("chunk not found")

	// ErrEmbedding is returned when embedding generation fails.
	ErrEmbedding = errors.New("embedding failed")

	// ErrBadEmbedding is returned when an embedding's byte length does not
	// match the configured dimensionality. Such values are rejected at the
	// store boundary, never coerced.
	ErrBadEmbedding = errors.New("embedding has wrong length")

	// ErrConnection is returned when the store connection fails.
	ErrConnection = errors.New("vector store connection failed")
)
