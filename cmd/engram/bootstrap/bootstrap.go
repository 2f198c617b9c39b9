// Package bootstrap assembles runtime components from resolved
// configuration. Commands compose what they need from these constructors
// instead of wiring providers by hand.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/archive"
	"github.com/halfmoonlabs/engram/pkg/auth"
	"github.com/halfmoonlabs/engram/pkg/config"
	"github.com/halfmoonlabs/engram/pkg/embeddings"
	embollama "github.com/halfmoonlabs/engram/pkg/embeddings/ollama"
	"github.com/halfmoonlabs/engram/pkg/embeddings/onnx"
	"github.com/halfmoonlabs/engram/pkg/embeddings/pool"
	"github.com/halfmoonlabs/engram/pkg/eventstream"
	eskafka "github.com/halfmoonlabs/engram/pkg/eventstream/kafka"
	"github.com/halfmoonlabs/engram/pkg/eventstream/nop"
	"github.com/halfmoonlabs/engram/pkg/llm"
	genanthropic "github.com/halfmoonlabs/engram/pkg/llm/anthropic"
	genollama "github.com/halfmoonlabs/engram/pkg/llm/ollama"
	"github.com/halfmoonlabs/engram/pkg/segment"
	"github.com/halfmoonlabs/engram/pkg/session"
	"github.com/halfmoonlabs/engram/pkg/store"
	"github.com/halfmoonlabs/engram/pkg/vector/qdrant"
	"github.com/halfmoonlabs/engram/pkg/window"
	"github.com/halfmoonlabs/engram/pkg/worker"
)

// Embedder builds the configured embedding provider. The second return
// reports whether it runs on an accelerated backend, which governs
// adaptive batching.
func Embedder(cfg *config.Config, logger *zap.Logger) (embeddings.Embedder, bool, error) {
	switch cfg.Embedding.Provider {
	case "onnx":
		engine, err := onnx.New(onnx.Config{
			ModelPath:     cfg.Embedding.ModelPath,
			TokenizerPath: cfg.Embedding.TokenizerPath,
			Dimensions:    int(cfg.Embedding.Dimensions),
			Guard: onnx.GuardConfig{
				MinMemoryMB:     cfg.Embedding.MinMemoryMB,
				MinCores:        cfg.Embedding.MinCores,
				AdapterDenylist: cfg.Embedding.AdapterDenylist,
			},
		}, logger)
		if err != nil {
			return nil, false, err
		}
		return engine, engine.Backend() == embeddings.BackendAccelerated, nil

	case "ollama":
		embedder, err := embollama.NewEmbedder(embollama.Config{
			BaseURL: cfg.Embedding.Target,
			Model:   cfg.Embedding.Model,
		})
		if err != nil {
			return nil, false, err
		}
		// The Ollama server batches effectively regardless of local
		// hardware.
		return embedder, true, nil

	default:
		return nil, false, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

// Pool wraps an embedder with the configured concurrency and batching.
func Pool(cfg *config.Config, embedder embeddings.Embedder, accelerated bool, logger *zap.Logger) *pool.Pool {
	return pool.New(embedder, pool.Config{
		Workers:         cfg.Embedding.PoolWorkers,
		BatchCap:        cfg.Embedding.BatchCap,
		GrowThreshold:   cfg.Embedding.GrowThreshold,
		ShrinkThreshold: cfg.Embedding.ShrinkThreshold,
		Accelerated:     accelerated,
	}, logger)
}

// Store builds the local vector store.
func Store(cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	return store.New(store.Config{
		SQLitePath: cfg.Store.SQLitePath,
		KVPath:     cfg.Store.KVPath,
		Dimensions: cfg.Embedding.Dimensions,
	}, logger)
}

// Remote builds the optional remote document store tier. Returns nil
// when the remote tier is disabled.
func Remote(ctx context.Context, cfg *config.Config, logger *zap.Logger) (archive.Remote, error) {
	if !cfg.Remote.Enabled {
		return nil, nil
	}
	return qdrant.New(ctx, qdrant.Config{
		Host:       cfg.Remote.Host,
		Port:       cfg.Remote.Port,
		Collection: cfg.Remote.Collection,
		Dimensions: cfg.Embedding.Dimensions,
	}, logger)
}

// Generator builds the configured generation provider.
func Generator(cfg *config.Config) (llm.Generator, error) {
	switch cfg.Generation.Provider {
	case "anthropic":
		return genanthropic.New(genanthropic.Config{
			APIKey:    cfg.Generation.APIKey,
			Model:     cfg.Generation.Model,
			MaxTokens: cfg.Generation.MaxTokens,
		})
	case "ollama":
		return genollama.New(genollama.Config{
			BaseURL:   cfg.Generation.Target,
			Model:     cfg.Generation.Model,
			MaxTokens: cfg.Generation.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
}

// Publisher builds the turn event publisher. Disabled events get the
// no-op publisher.
func Publisher(cfg *config.Config, logger *zap.Logger) (eventstream.Publisher, error) {
	if !cfg.Events.Enabled {
		return nop.NewPublisher(), nil
	}
	return eskafka.NewPublisher(eskafka.Config{
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
	}, logger)
}

// ArchiveProfile derives the coarse chunking profile used for archived
// conversation turns.
func ArchiveProfile(cfg *config.Config) segment.Profile {
	return segment.Profile{
		MaxLen:      cfg.Segment.ArchiveMaxLen,
		Overlap:     cfg.Segment.ArchiveOverlap,
		MinDedupLen: cfg.Segment.MinDedupLen,
		MaxChunks:   cfg.Segment.MaxChunks,
	}
}

// Runtime is a fully wired conversation stack plus its cleanup.
type Runtime struct {
	Orchestrator *session.Orchestrator
	Store        *store.Store
	Bridge       *archive.Bridge
	Window       *window.Window

	closers []func() error
}

// Close releases components in reverse construction order.
func (r *Runtime) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewRuntime wires the complete send-message stack for one owner.
func NewRuntime(ctx context.Context, cfg *config.Config, ownerID string, logger *zap.Logger) (*Runtime, error) {
	rt := &Runtime{}

	embedder, accelerated, err := Embedder(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}
	rt.closers = append(rt.closers, embedder.Close)

	st, err := Store(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("building store: %w", err)
	}
	rt.Store = st
	rt.closers = append(rt.closers, st.Close)

	// The worker owns both the store and the model; every upsert,
	// search, and embed funnels through its goroutine.
	wkr := worker.New(st, embedder, worker.Config{
		RequestTimeout: time.Duration(cfg.Worker.RequestTimeoutSeconds) * time.Second,
	}, logger)
	rt.closers = append(rt.closers, wkr.Close)

	remote, err := Remote(ctx, cfg, logger)
	if err != nil {
		logger.Warn("remote store unavailable, continuing without it", zap.Error(err))
		remote = nil
	}

	bridge, err := archive.New(archive.Config{
		Chunking:        ArchiveProfile(cfg),
		TopK:            cfg.Store.TopK,
		MinSimilarity:   cfg.Store.MinSimilarity,
		MaxContextChars: cfg.Generation.ContextTokens * cfg.Window.CharsPerToken,
	}, wkr, remote, wkr, Pool(cfg, wkr, accelerated, logger), logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("building archive bridge: %w", err)
	}
	rt.Bridge = bridge
	rt.closers = append(rt.closers, bridge.Close)

	generator, err := Generator(cfg)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("building generator: %w", err)
	}

	publisher, err := Publisher(cfg, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("building publisher: %w", err)
	}
	rt.closers = append(rt.closers, publisher.Close)

	rt.Window = window.New(window.Config{
		TokenCeiling:          cfg.Window.TokenCeiling,
		HysteresisRatio:       cfg.Window.HysteresisRatio,
		CharsPerToken:         cfg.Window.CharsPerToken,
		MessageOverheadTokens: cfg.Window.MessageOverheadTokens,
	})

	orchestrator, err := session.New(session.Config{HistoryTokens: cfg.Generation.WindowTokens},
		auth.NewStatic(ownerID), rt.Window, bridge, generator, publisher, logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}
	rt.Orchestrator = orchestrator

	return rt, nil
}
