// Package exportcmder provides the export command: one-way upload of an
// owner's completed chunks to the remote document store.
package exportcmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/cmd/engram/bootstrap"
	"github.com/halfmoonlabs/engram/pkg/archive"
	"github.com/halfmoonlabs/engram/pkg/config"
	"github.com/halfmoonlabs/engram/pkg/logger"
	"github.com/halfmoonlabs/engram/pkg/worker"
)

type exportCommander struct {
	configDir string
	owner     string
	debug     bool

	logger *zap.Logger
}

const exportLongDesc string = `Upload the owner's completed chunks to the remote document store.

Export is one-way: local chunks go up, nothing is read back or deleted.
Running it again re-uploads everything; the remote store deduplicates by
chunk id. Requires the remote store to be enabled in config.

Examples:
  engram export
  engram export --owner alice`

const exportShortDesc string = "Upload an owner's memory to the remote store"

func NewExportCmd() *cobra.Command {
	cmder := &exportCommander{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: exportShortDesc,
		Long:  exportLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			return cmder.run(cmd.Context())
		},
	}

	return cmd
}

func (c *exportCommander) run(ctx context.Context) error {
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

	if !cfg.Remote.Enabled {
		return fmt.Errorf("remote store is not enabled in config")
	}

	st, err := bootstrap.Store(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}
	defer func() { _ = st.Close() }()

	remote, err := bootstrap.Remote(ctx, cfg, c.logger)
	if err != nil {
		return fmt.Errorf("connecting to remote store: %w", err)
	}

	// Export never embeds, so the worker fronts the store alone and
	// stands in for the bridge's embedder.
	wkr := worker.New(st, nil, worker.Config{
		RequestTimeout: time.Duration(cfg.Worker.RequestTimeoutSeconds) * time.Second,
	}, c.logger)
	defer func() { _ = wkr.Close() }()

	bridge, err := archive.New(archive.Config{
		TopK:          cfg.Store.TopK,
		MinSimilarity: cfg.Store.MinSimilarity,
	}, wkr, remote, wkr, nil, c.logger)
	if err != nil {
		return fmt.Errorf("building archive bridge: %w", err)
	}
	defer func() { _ = bridge.Close() }()

	count, err := bridge.Export(ctx, c.owner)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}

	fmt.Printf("  exported %d chunks for owner %s\n", count, c.owner)
	return nil
}
