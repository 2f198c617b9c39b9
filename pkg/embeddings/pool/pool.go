// Package pool runs embedding work at bounded concurrency.
//
// EmbedMany fans a slice of texts over a fixed set of workers that pull
// indices from a shared cursor, so a slow item never stalls the others
// and output order always matches input order. EmbedBatched drives a
// BatchEmbedder with an adaptive batch size: grow while per-item latency
// keeps improving, halve on a sharp regression, and stay at one item per
// call on the fallback backend where batching buys nothing.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/embeddings"
)

const (
	// DefaultWorkers is the default worker count for EmbedMany.
	DefaultWorkers = 3

	// DefaultBatchCap is the default upper bound for adaptive batching.
	DefaultBatchCap = 32

	defaultGrowThreshold   = 0.10
	defaultShrinkThreshold = 0.25
)

// Config holds configuration for the pool.
type Config struct {
	// Workers is the fixed concurrency for EmbedMany.
	Workers int

	// BatchCap bounds the adaptive batch size.
	BatchCap int

	// GrowThreshold is the fractional per-item latency improvement that
	// doubles the batch size.
	GrowThreshold float64

	// ShrinkThreshold is the fractional per-item latency regression that
	// halves it.
	ShrinkThreshold float64

	// Accelerated reports whether the underlying embedder runs on the
	// accelerated backend. The fallback backend pins the batch size to 1.
	Accelerated bool
}

// ProgressFunc is called after each completed item. Calls are serialized
// and the worker waits for the call to return before taking more work.
type ProgressFunc func(completed, total int)

// Pool wraps an embedder with concurrency and batching policies.
type Pool struct {
	embedder embeddings.Embedder
	config   Config
	logger   *zap.Logger
}

// New creates a pool around an embedder.
func New(embedder embeddings.Embedder, cfg Config, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BatchCap <= 0 {
		cfg.BatchCap = DefaultBatchCap
	}
	if cfg.GrowThreshold <= 0 {
		cfg.GrowThreshold = defaultGrowThreshold
	}
	if cfg.ShrinkThreshold <= 0 {
		cfg.ShrinkThreshold = defaultShrinkThreshold
	}
	return &Pool{embedder: embedder, config: cfg, logger: logger}
}

// EmbedMany embeds every text, preserving input order. The first error
// cancels the remaining work and is returned.
func (p *Pool) EmbedMany(ctx context.Context, texts []string, onProgress ProgressFunc) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))

	var (
		cursor    atomic.Int64
		wg        sync.WaitGroup
		errOnce   sync.Once
		firstErr  error
		progMu    sync.Mutex
		completed int
	)

	workers := p.config.Workers
	if workers > len(texts) {
		workers = len(texts)
	}

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				idx := int(cursor.Add(1)) - 1
				if idx >= len(texts) {
					return
				}
				if ctx.Err() != nil {
					return
				}

				emb, err := p.embedder.Embed(ctx, texts[idx])
				if err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
				results[idx] = emb

				if onProgress != nil {
					progMu.Lock()
					completed++
					onProgress(completed, len(texts))
					progMu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// EmbedBatched embeds every text through the embedder's batch call,
// adjusting the batch size between calls from observed per-item latency.
// Falls back to EmbedMany when the embedder has no batch support.
func (p *Pool) EmbedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batcher, ok := p.embedder.(embeddings.BatchEmbedder)
	if !ok {
		return p.EmbedMany(ctx, texts, nil)
	}

	results := make([][]float32, 0, len(texts))
	batch := p.initialBatchSize(len(texts))
	prevPerItem := 0.0

	for i := 0; i < len(texts); {
		n := batch
		if rem := len(texts) - i; n > rem {
			n = rem
		}

		start := time.Now()
		embs, err := batcher.EmbedBatch(ctx, texts[i:i+n])
		if err != nil {
			return nil, err
		}
		perItem := time.Since(start).Seconds() / float64(n)

		results = append(results, embs...)
		i += n

		next := nextBatchSize(batch, prevPerItem, perItem, len(texts)-i, p.config)
		if next != batch {
			p.logger.Debug("adjusted embedding batch size",
				zap.Int("from", batch),
				zap.Int("to", next),
			)
			batch = next
		}
		prevPerItem = perItem
	}
	return results, nil
}

// initialBatchSize picks the opening batch from the backend and the
// total workload. The fallback backend always starts (and stays) at 1.
func (p *Pool) initialBatchSize(total int) int {
	if !p.config.Accelerated {
		return 1
	}
	batch := total / 4
	if batch < 1 {
		batch = 1
	}
	if batch > p.config.BatchCap {
		batch = p.config.BatchCap
	}
	return batch
}

// nextBatchSize applies the hill-climbing rule: double on a clear
// per-item improvement when enough work remains to spend the larger
// batch twice, halve on a clear regression, and never leave [1, cap].
// The fallback backend is pinned at 1.
func nextBatchSize(current int, prevPerItem, perItem float64, remaining int, cfg Config) int {
	if !cfg.Accelerated {
		return 1
	}
	if prevPerItem <= 0 {
		return current
	}

	if perItem < prevPerItem*(1-cfg.GrowThreshold) && remaining >= 2*current && current < cfg.BatchCap {
		next := current * 2
		if next > cfg.BatchCap {
			next = cfg.BatchCap
		}
		return next
	}
	if perItem > prevPerItem*(1+cfg.ShrinkThreshold) && current > 1 {
		return current / 2
	}
	return current
}
