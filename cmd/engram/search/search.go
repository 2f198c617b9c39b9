// Package searchcmder provides the search command for querying the
// local vector store.
package searchcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/cmd/engram/bootstrap"
	"github.com/halfmoonlabs/engram/pkg/config"
	"github.com/halfmoonlabs/engram/pkg/logger"
	"github.com/halfmoonlabs/engram/pkg/utils"
	"github.com/halfmoonlabs/engram/pkg/worker"
)

type searchCommander struct {
	configDir string
	owner     string
	debug     bool
	topK      int

	logger *zap.Logger
}

const searchLongDesc string = `Search the owner's stored chunks by semantic similarity.

The query is embedded and matched against the local store. When the fast
index is unavailable the store falls back to an exact scan with lexical
re-ranking, so results may differ slightly across runs on degraded
installs.

Examples:
  engram search "what did we decide about the schema"
  engram search "deploy steps" --top-k 5`

const searchShortDesc string = "Query the local vector store"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
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

	cmd.Flags().IntVarP(&cmder.topK, "top-k", "k", 0, "Result count (default from config)")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, query string) error {
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

	topK := c.topK
	if topK <= 0 {
		topK = cfg.Store.TopK
	}

	embedder, _, err := bootstrap.Embedder(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	st, err := bootstrap.Store(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}
	defer func() { _ = st.Close() }()

	wkr := worker.New(st, embedder, worker.Config{}, c.logger)
	defer func() { _ = wkr.Close() }()

	queryEmb, err := wkr.Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	results, err := wkr.Search(ctx, c.owner, queryEmb, query, topK)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("  no results")
		return nil
	}

	for i, r := range results {
		fmt.Printf("  %2d. [%.3f] %s (%s#%d)\n", i+1, r.Score,
			utils.Truncate(r.Text, 96), r.SourceName, r.SequenceIndex)
	}
	return nil
}
