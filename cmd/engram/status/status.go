// Package statuscmder provides the status command reporting store health
// and per-owner aggregates.
package statuscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/cmd/engram/bootstrap"
	"github.com/halfmoonlabs/engram/pkg/config"
	"github.com/halfmoonlabs/engram/pkg/logger"
	"github.com/halfmoonlabs/engram/pkg/vector"
	"github.com/halfmoonlabs/engram/pkg/worker"
)

type statusCommander struct {
	configDir string
	owner     string
	debug     bool

	logger *zap.Logger
}

const statusLongDesc string = `Show local store health and the owner's memory footprint.

Reports which storage tier is active (durable or in-memory), whether the
fast vector index is available, and per-owner chunk aggregates computed
on demand.`

const statusShortDesc string = "Show store health and per-owner stats"

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
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

func (c *statusCommander) run(ctx context.Context) error {
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

	st, err := bootstrap.Store(cfg, c.logger)
	if err != nil {
		return fmt.Errorf("building store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Init(ctx); err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	tier := "in-memory (mirror durability only)"
	if st.Persistent() {
		tier = fmt.Sprintf("durable (%s)", cfg.Store.SQLitePath)
	}
	index := "unavailable (exact scan fallback)"
	if st.IndexAvailable() {
		index = "available"
	}

	count, totalBytes, err := st.Meta(ctx, c.owner)
	if err != nil {
		return fmt.Errorf("computing aggregates: %w", err)
	}

	wkr := worker.New(st, nil, worker.Config{}, c.logger)
	defer func() { _ = wkr.Close() }()

	pending, err := wkr.ListByStatus(ctx, c.owner, vector.StatusPending)
	if err != nil {
		return fmt.Errorf("listing pending chunks: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Storage tier:  %s\n", tier)
	fmt.Printf("  Vector index:  %s\n", index)
	fmt.Printf("  Owner:         %s\n", c.owner)
	fmt.Printf("  Chunks:        %d (%d pending)\n", count, len(pending))
	fmt.Printf("  Stored bytes:  %d\n", totalBytes)
	return nil
}
