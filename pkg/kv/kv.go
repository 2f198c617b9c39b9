// Package kv defines the minimal durable key-value contract the chunk
// store's mirroring and rehydration logic depends on. Records are opaque
// blobs under a composite string key, with the owner id as a secondary key.
package kv

import "context"

// Record is one opaque mirror entry. Keys are composed as
// "ownerID::sourceName::chunkIndex".
type Record struct {
	Key   string
	Owner string
	Value []byte
}

// Store is the durable key-value collaborator.
type Store interface {
	// Put writes or replaces a record by key.
	Put(ctx context.Context, rec Record) error

	// GetAllByOwner returns every record whose owner matches.
	GetAllByOwner(ctx context.Context, owner string) ([]Record, error)

	// DeleteByOwner removes every record whose owner matches.
	DeleteByOwner(ctx context.Context, owner string) error

	// Scan visits every record. Returning an error from fn stops the scan.
	Scan(ctx context.Context, fn func(Record) error) error

	// Close releases any resources held by the store.
	Close() error
}
