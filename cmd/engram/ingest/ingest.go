// Package ingestcmder provides the ingest command: segment a document,
// embed the chunks, and store them for retrieval.
package ingestcmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/cmd/engram/bootstrap"
	"github.com/halfmoonlabs/engram/pkg/config"
	"github.com/halfmoonlabs/engram/pkg/logger"
	"github.com/halfmoonlabs/engram/pkg/segment"
	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/worker"
)

type ingestCommander struct {
	configDir  string
	owner      string
	debug      bool
	sourceName string

	logger *zap.Logger
}

const ingestLongDesc string = `Ingest a document into the local vector store.

The document is normalized, redacted, and split into overlapping chunks
sized by input length. Chunks are embedded at bounded concurrency and
stored under the owner, becoming retrievable by "engram search" and by
chat-time context retrieval.

Reads from the file argument, or stdin when the argument is "-".

Examples:
  engram ingest notes.md
  cat notes.md | engram ingest - --source-name notes.md`

const ingestShortDesc string = "Embed and store a document for retrieval"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cmder.debug, err = cmd.Flags().GetBool("debug"); err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			if cmder.configDir, err = cmd.Flags().GetString("config-dir"); err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}
			if cmder.owner, err = cmd.Flags().GetString("owner"); err != nil {
				return fmt.Errorf("could not get owner flag: %w", err)
			}

			return cmder.run(cmd.Context(), args[0])
		},
	}

	cmd.Flags().StringVar(&cmder.sourceName, "source-name", "", "Source name stored with the chunks (default: file name)")

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, path string) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	v, err := config.InitViper(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	text, sourceName, err := c.read(path)
	if err != nil {
		return err
	}

	profiles := segment.ProfileSet{
		Default: segment.Profile{
			MaxLen:      cfg.Segment.Default.MaxLen,
			Overlap:     cfg.Segment.Default.Overlap,
			MinDedupLen: cfg.Segment.MinDedupLen,
			MaxChunks:   cfg.Segment.MaxChunks,
		},
		Short: segment.Profile{
			MaxLen:      cfg.Segment.Short.MaxLen,
			Overlap:     cfg.Segment.Short.Overlap,
			MinDedupLen: cfg.Segment.MinDedupLen,
			MaxChunks:   cfg.Segment.MaxChunks,
		},
		ShortThreshold: cfg.Segment.ShortInputThreshold,
	}

	chunks, truncated, err := segment.Segment(segment.Redact(text), profiles.For(len(text)))
	if err != nil {
		return fmt.Errorf("segmenting document: %w", err)
	}
	if truncated {
		fmt.Fprintf(os.Stderr, "  warning: document exceeded the chunk cap, tail dropped\n")
	}

	embedder, accelerated, err := bootstrap.Embedder(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	st, err := bootstrap.Store(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}
	defer func() { _ = st.Close() }()

	wkr := worker.New(st, embedder, worker.Config{
		RequestTimeout: time.Duration(cfg.Worker.RequestTimeoutSeconds) * time.Second,
	}, c.logger)
	defer func() { _ = wkr.Close() }()

	p := bootstrap.Pool(cfg, wkr, accelerated, c.logger)
	embs, err := p.EmbedMany(ctx, chunks, func(completed, total int) {
		fmt.Fprintf(os.Stderr, "\r  embedding %d/%d", completed, total)
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("embedding chunks: %w", err)
	}

	now := time.Now()
	records := make([]vector.Chunk, len(chunks))
	for i := range chunks {
		records[i] = vector.Chunk{
			ID:            uuid.NewString(),
			OwnerID:       c.owner,
			SourceName:    sourceName,
			SequenceIndex: i,
			Text:          chunks[i],
			Embedding:     embs[i],
			Status:        vector.StatusCompleted,
			CreatedAt:     now,
		}
	}
	if err := wkr.UpsertChunks(ctx, records); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}

	fmt.Printf("  stored %d chunks from %s for owner %s\n", len(records), sourceName, c.owner)
	return nil
}

func (c *ingestCommander) read(path string) (text, sourceName string, err error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("reading stdin: %w", err)
		}
		name := c.sourceName
		if name == "" {
			name = "stdin"
		}
		return string(data), name, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	name := c.sourceName
	if name == "" {
		name = filepath.Base(path)
	}
	return string(data), name, nil
}
