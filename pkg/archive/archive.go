// Package archive bridges the active memory window and long-term
// retrieval.
//
// Turns evicted from the window are concatenated with their role tags,
// chunked, embedded, and written to the local vector store (and, when
// configured, the remote document store). Retrieval runs the other way:
// a query is embedded, the local store is searched first, and the remote
// store is consulted only when nothing local clears the similarity bar,
// falling back to a bounded recency read when similarity finds nothing
// anywhere.
// Retrieval results are cached per owner; any archive write for that
// owner invalidates the cache.
package archive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/embeddings"
	"github.com/halfmoonlabs/engram/pkg/embeddings/pool"
	"github.com/halfmoonlabs/engram/pkg/segment"
	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/window"
)

const (
	// DefaultTopK is the default retrieval depth.
	DefaultTopK = 10

	// DefaultMinSimilarity is the relevance floor for retrieved chunks.
	DefaultMinSimilarity = 0.3

	// DefaultMaxContextChars bounds the assembled context string.
	DefaultMaxContextChars = 8192

	cacheTTL = 5 * time.Minute
)

// Store is the local side of the bridge.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []vector.Chunk) error
	Search(ctx context.Context, ownerID string, query []float32, queryText string, topK int) ([]vector.Result, error)
	ListByStatus(ctx context.Context, ownerID string, status vector.Status) ([]vector.Chunk, error)
}

// Remote is the optional remote document store tier.
type Remote interface {
	UpsertChunks(ctx context.Context, chunks []vector.Chunk) error
	Search(ctx context.Context, ownerID string, query []float32, topK int) ([]vector.Result, error)
	RecentByOwner(ctx context.Context, ownerID string, limit int) ([]vector.Chunk, error)
}

// Config holds configuration for the bridge.
type Config struct {
	// Chunking is the profile applied to archived conversation text.
	Chunking segment.Profile

	// TopK is the retrieval depth.
	TopK int

	// MinSimilarity is the relevance floor.
	MinSimilarity float64

	// MaxContextChars bounds the assembled context string.
	MaxContextChars int
}

// Bridge archives evicted turns and retrieves relevant context.
type Bridge struct {
	config   Config
	store    Store
	remote   Remote
	embedder embeddings.Embedder
	pool     *pool.Pool
	cache    *ristretto.Cache
	logger   *zap.Logger

	genMu sync.Mutex
	gens  map[string]uint64
}

// New creates a bridge. remote may be nil.
func New(cfg Config, store Store, remote Remote, embedder embeddings.Embedder, p *pool.Pool, logger *zap.Logger) (*Bridge, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = DefaultMaxContextChars
	}
	if cfg.Chunking.MaxLen <= 0 {
		cfg.Chunking = segment.Profile{MaxLen: 800, Overlap: 100, MinDedupLen: 80, MaxChunks: 512}
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     8 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating retrieval cache: %w", err)
	}

	return &Bridge{
		config:   cfg,
		store:    store,
		remote:   remote,
		embedder: embedder,
		pool:     p,
		cache:    cache,
		logger:   logger,
		gens:     map[string]uint64{},
	}, nil
}

// Archive chunks, embeds, and stores evicted turns. An empty eviction is
// a no-op. Remote replication is best effort.
func (b *Bridge) Archive(ctx context.Context, ownerID string, turns []window.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
	}

	texts, truncated, err := segment.Segment(segment.Redact(sb.String()), b.config.Chunking)
	if err != nil {
		return fmt.Errorf("segmenting archived turns: %w", err)
	}
	if truncated {
		b.logger.Warn("archived conversation exceeded the chunk cap, tail dropped",
			zap.String("owner_id", ownerID),
		)
	}
	if len(texts) == 0 {
		return nil
	}

	var embs [][]float32
	if b.pool != nil {
		embs, err = b.pool.EmbedBatched(ctx, texts)
	} else {
		embs = make([][]float32, len(texts))
		for i, t := range texts {
			embs[i], err = b.embedder.Embed(ctx, t)
			if err != nil {
				break
			}
		}
	}
	if err != nil {
		return fmt.Errorf("embedding archived turns: %w", err)
	}

	// A fresh source name per archive event keeps sequence indexes unique
	// without coordinating with prior writes.
	sourceName := fmt.Sprintf("conversation/%d", time.Now().UnixNano())
	now := time.Now()

	chunks := make([]vector.Chunk, len(texts))
	for i := range texts {
		chunks[i] = vector.Chunk{
			ID:            uuid.NewString(),
			OwnerID:       ownerID,
			SourceName:    sourceName,
			SequenceIndex: i,
			Text:          texts[i],
			Embedding:     embs[i],
			Status:        vector.StatusCompleted,
			CreatedAt:     now,
		}
	}

	if err := b.store.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("storing archived turns: %w", err)
	}

	if b.remote != nil {
		if err := b.remote.UpsertChunks(ctx, chunks); err != nil {
			b.logger.Warn("remote archive replication failed",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
		}
	}

	b.invalidate(ownerID)
	b.logger.Debug("archived evicted turns",
		zap.String("owner_id", ownerID),
		zap.Int("turns", len(turns)),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// RelevantContext retrieves stored chunks relevant to the query and
// assembles them into a single context string. The second return value
// is false when nothing clears the similarity floor.
func (b *Bridge) RelevantContext(ctx context.Context, ownerID, query string) (string, bool, error) {
	key := b.cacheKey(ownerID, query)
	if cached, ok := b.cache.Get(key); ok {
		text := cached.(string)
		return text, text != "", nil
	}

	queryEmb, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return "", false, fmt.Errorf("embedding query: %w", err)
	}

	results, err := b.store.Search(ctx, ownerID, queryEmb, query, b.config.TopK)
	if err != nil {
		return "", false, fmt.Errorf("searching local store: %w", err)
	}
	relevant := b.filter(results)

	if len(relevant) == 0 && b.remote != nil {
		remoteResults, err := b.remote.Search(ctx, ownerID, queryEmb, b.config.TopK)
		if err != nil {
			b.logger.Warn("remote retrieval failed",
				zap.String("owner_id", ownerID),
				zap.Error(err),
			)
		} else {
			relevant = b.filter(remoteResults)
		}

		// Last resort: when similarity finds nothing anywhere, surface the
		// owner's most recently archived chunks instead of nothing at all.
		if len(relevant) == 0 {
			recent, err := b.remote.RecentByOwner(ctx, ownerID, b.config.TopK)
			if err != nil {
				b.logger.Warn("remote recency read failed",
					zap.String("owner_id", ownerID),
					zap.Error(err),
				)
			}
			for _, c := range recent {
				relevant = append(relevant, vector.Result{Chunk: c})
			}
		}
	}

	text := b.assemble(relevant)
	b.cache.SetWithTTL(key, text, int64(len(text))+1, cacheTTL)
	return text, text != "", nil
}

// Export uploads the owner's completed chunks to the remote store and
// reports how many went up. It is one-way: nothing is read back.
func (b *Bridge) Export(ctx context.Context, ownerID string) (int, error) {
	if b.remote == nil {
		return 0, fmt.Errorf("no remote store configured")
	}

	chunks, err := b.store.ListByStatus(ctx, ownerID, vector.StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("listing completed chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	if err := b.remote.UpsertChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("uploading chunks: %w", err)
	}

	b.logger.Debug("exported chunks to remote store",
		zap.String("owner_id", ownerID),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

func (b *Bridge) filter(results []vector.Result) []vector.Result {
	var out []vector.Result
	for _, r := range results {
		if float64(r.Score) >= b.config.MinSimilarity {
			out = append(out, r)
		}
	}
	return out
}

// assemble greedily concatenates chunk texts, best first, under the
// character bound. A chunk that would overflow is skipped, not trimmed.
func (b *Bridge) assemble(results []vector.Result) string {
	var sb strings.Builder
	for _, r := range results {
		need := len(r.Text)
		if sb.Len() > 0 {
			need += 2
		}
		if sb.Len()+need > b.config.MaxContextChars {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// cacheKey embeds a per-owner generation counter so archive writes
// invalidate every cached query for that owner at once.
func (b *Bridge) cacheKey(ownerID, query string) string {
	b.genMu.Lock()
	gen := b.gens[ownerID]
	b.genMu.Unlock()
	return fmt.Sprintf("%s::%d::%s", ownerID, gen, query)
}

func (b *Bridge) invalidate(ownerID string) {
	b.genMu.Lock()
	b.gens[ownerID]++
	b.genMu.Unlock()
}

// Close releases the retrieval cache.
func (b *Bridge) Close() error {
	b.cache.Close()
	return nil
}
