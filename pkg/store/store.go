// Package store composes the primary chunk driver and the durable
// key-value mirror into the local vector store.
//
// Initialization follows uninitialized → initializing → ready, with the
// initializing phase memoized through a single-flight group so concurrent
// callers await the same attempt instead of racing to create the database
// twice. Tier selection prefers the durable sqlite-vec database; when it
// cannot be opened the store degrades to an in-memory driver and durability
// comes entirely from the mirror. Every successful write is mirrored
// regardless of which tier is active, and on the first ready transition the
// mirror is scanned to rehydrate the primary store — a duplicate-safe merge
// that is a no-op when the durable tier was used all along.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/halfmoonlabs/engram/pkg/kv"
	"github.com/halfmoonlabs/engram/pkg/kv/memkv"
	"github.com/halfmoonlabs/engram/pkg/kv/sqlitekv"
	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/vector/chromem"
	"github.com/halfmoonlabs/engram/pkg/vector/sqlitevec"
)

// State is the store's initialization state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
)

// Config holds configuration for the store.
type Config struct {
	// SQLitePath is the durable chunk database file.
	SQLitePath string

	// KVPath is the durable mirror database file.
	KVPath string

	// Dimensions is the fixed embedding dimensionality.
	Dimensions uint

	// Driver overrides tier selection when set. Used by tests.
	Driver vector.Driver

	// Mirror overrides mirror selection when set. Used by tests.
	Mirror kv.Store
}

// Store is the process-wide local vector store.
type Store struct {
	config Config
	logger *zap.Logger

	initGroup singleflight.Group

	mu         sync.RWMutex
	state      State
	driver     vector.Driver
	mirror     kv.Store
	persistent bool
	rehydrated bool
}

// New creates a store. No storage is touched until the first operation
// (or an explicit Init).
func New(c Config, logger *zap.Logger) (*Store, error) {
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("embedding dimensions cannot be 0, must be configured")
	}
	return &Store{
		config: c,
		logger: logger,
		state:  StateUninitialized,
	}, nil
}

// State reports the current initialization state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Persistent reports whether the durable primary tier is active.
func (s *Store) Persistent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistent
}

// IndexAvailable reports whether the ANN index is in use. False when the
// in-memory tier is active or the index has been retired.
func (s *Store) IndexAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.driver.(*sqlitevec.Driver); ok {
		return d.IndexAvailable()
	}
	return false
}

// Init brings the store to ready. Safe to call concurrently and
// repeatedly; a failed attempt is not cached, the next call retries.
func (s *Store) Init(ctx context.Context) error {
	s.mu.RLock()
	if s.state == StateReady {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		return nil, s.initialize(ctx)
	})
	return err
}

func (s *Store) initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	s.state = StateInitializing
	s.mu.Unlock()

	driver, persistent, err := s.selectDriver()
	if err != nil {
		s.mu.Lock()
		s.state = StateUninitialized
		s.mu.Unlock()
		return err
	}

	mirror := s.selectMirror()

	s.mu.Lock()
	s.driver = driver
	s.mirror = mirror
	s.persistent = persistent
	s.state = StateReady
	s.mu.Unlock()

	s.rehydrate(ctx)
	return nil
}

// selectDriver picks the primary tier: durable sqlite-vec first, in-memory
// chromem as the degraded fallback. The fallback is logged once; total
// failure requires both tiers to be unavailable.
func (s *Store) selectDriver() (vector.Driver, bool, error) {
	if s.config.Driver != nil {
		return s.config.Driver, false, nil
	}

	driver, err := sqlitevec.New(sqlitevec.Config{
		DBPath:     s.config.SQLitePath,
		Dimensions: s.config.Dimensions,
	}, s.logger)
	if err == nil {
		return driver, true, nil
	}
	s.logger.Warn("durable chunk store unavailable, using in-memory store with mirror durability",
		zap.String("sqlite_path", s.config.SQLitePath),
		zap.Error(err),
	)

	memDriver, err := chromem.New(s.config.Dimensions, s.logger)
	if err != nil {
		return nil, false, fmt.Errorf("initializing in-memory store: %w", err)
	}
	return memDriver, false, nil
}

func (s *Store) selectMirror() kv.Store {
	if s.config.Mirror != nil {
		return s.config.Mirror
	}

	mirror, err := sqlitekv.New(s.config.KVPath, s.logger)
	if err == nil {
		return mirror
	}
	s.logger.Warn("durable mirror unavailable, mirroring to process memory only",
		zap.String("kv_path", s.config.KVPath),
		zap.Error(err),
	)
	return memkv.New()
}

// mirrorRecord is the JSON value stored in the key-value mirror.
type mirrorRecord struct {
	ChunkID       string    `json:"chunk_id"`
	OwnerID       string    `json:"owner_id"`
	SourceName    string    `json:"source_name"`
	SequenceIndex int       `json:"sequence_index"`
	Text          string    `json:"text"`
	Embedding     []byte    `json:"embedding"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

func mirrorKey(c *vector.Chunk) string {
	return fmt.Sprintf("%s::%s::%d", c.OwnerID, c.SourceName, c.SequenceIndex)
}

// rehydrate replays the mirror into the primary store. Runs at most once
// per process; rows whose embedding blob has the wrong byte length are
// skipped and counted rather than coerced.
func (s *Store) rehydrate(ctx context.Context) {
	s.mu.Lock()
	if s.rehydrated {
		s.mu.Unlock()
		return
	}
	s.rehydrated = true
	driver, mirror := s.driver, s.mirror
	s.mu.Unlock()

	var restored, skipped int
	err := mirror.Scan(ctx, func(rec kv.Record) error {
		var row mirrorRecord
		if err := json.Unmarshal(rec.Value, &row); err != nil {
			skipped++
			return nil
		}

		emb, err := vector.DeserializeFloat32(row.Embedding, s.config.Dimensions)
		if err != nil {
			skipped++
			s.logger.Debug("skipping mirror row with invalid embedding",
				zap.String("key", rec.Key),
				zap.Int("blob_bytes", len(row.Embedding)),
			)
			return nil
		}

		chunk := vector.Chunk{
			ID:            row.ChunkID,
			OwnerID:       row.OwnerID,
			SourceName:    row.SourceName,
			SequenceIndex: row.SequenceIndex,
			Text:          row.Text,
			Embedding:     emb,
			Status:        vector.Status(row.Status),
			CreatedAt:     row.CreatedAt,
		}
		if err := driver.Upsert(ctx, []vector.Chunk{chunk}); err != nil {
			skipped++
			return nil
		}
		restored++
		return nil
	})
	if err != nil {
		s.logger.Warn("mirror rehydration aborted", zap.Error(err))
		return
	}

	if restored > 0 || skipped > 0 {
		s.logger.Info("rehydrated chunk store from mirror",
			zap.Int("restored", restored),
			zap.Int("skipped", skipped),
		)
	}
}

// UpsertChunks writes chunks to the primary store and mirrors every one.
// Mirror failures are logged per row and never fail the write.
func (s *Store) UpsertChunks(ctx context.Context, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.Init(ctx); err != nil {
		return err
	}

	if err := s.driver.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("upserting chunks: %w", err)
	}

	for i := range chunks {
		chunk := &chunks[i]
		value, err := json.Marshal(mirrorRecord{
			ChunkID:       chunk.ID,
			OwnerID:       chunk.OwnerID,
			SourceName:    chunk.SourceName,
			SequenceIndex: chunk.SequenceIndex,
			Text:          chunk.Text,
			Embedding:     vector.SerializeFloat32(chunk.Embedding),
			Status:        string(chunk.Status),
			CreatedAt:     chunk.CreatedAt,
		})
		if err != nil {
			continue
		}
		if err := s.mirror.Put(ctx, kv.Record{
			Key:   mirrorKey(chunk),
			Owner: chunk.OwnerID,
			Value: value,
		}); err != nil {
			s.logger.Warn("mirror write failed",
				zap.String("key", mirrorKey(chunk)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Search delegates to the primary driver, which internally degrades from
// the ANN index to a brute-force scan.
func (s *Store) Search(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]vector.Result, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s.driver.Search(ctx, ownerID, query, queryText, topK)
}

// ListByStatus delegates to the primary driver.
func (s *Store) ListByStatus(ctx context.Context, ownerID string, status vector.Status) ([]vector.Chunk, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s.driver.ListByStatus(ctx, ownerID, status)
}

// DeleteOwner removes the owner's chunks from the primary store and the
// mirror.
func (s *Store) DeleteOwner(ctx context.Context, ownerID string) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	if err := s.driver.DeleteOwner(ctx, ownerID); err != nil {
		return err
	}
	if err := s.mirror.DeleteByOwner(ctx, ownerID); err != nil {
		s.logger.Warn("mirror delete failed",
			zap.String("owner_id", ownerID),
			zap.Error(err),
		)
	}
	return nil
}

// Meta computes per-owner aggregates on demand from the primary driver.
func (s *Store) Meta(ctx context.Context, ownerID string) (count int, totalBytes int64, err error) {
	if err := s.Init(ctx); err != nil {
		return 0, 0, err
	}

	type metaDriver interface {
		Meta(ctx context.Context, ownerID string) (int, int64, error)
	}
	if d, ok := s.driver.(metaDriver); ok {
		return d.Meta(ctx, ownerID)
	}

	chunks, err := s.driver.ListByStatus(ctx, ownerID, vector.StatusCompleted)
	if err != nil {
		return 0, 0, err
	}
	for i := range chunks {
		totalBytes += int64(len(chunks[i].Text) + len(chunks[i].Embedding)*4)
	}
	return len(chunks), totalBytes, nil
}

// Close releases the driver and mirror.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.driver != nil {
		if err := s.driver.Close(); err != nil {
			return err
		}
	}
	if s.mirror != nil {
		return s.mirror.Close()
	}
	return nil
}
