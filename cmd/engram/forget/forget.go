// Package forgetcmder provides the forget command: delete every stored
// chunk for an owner.
package forgetcmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/cmd/engram/bootstrap"
	"github.com/halfmoonlabs/engram/pkg/config"
	"github.com/halfmoonlabs/engram/pkg/logger"
	"github.com/halfmoonlabs/engram/pkg/worker"
)

type forgetCommander struct {
	configDir string
	owner     string
	debug     bool
	remote    bool

	logger *zap.Logger
}

const forgetLongDesc string = `Delete all of the owner's archived memory.

Removes the owner's chunks from the local store and its durable mirror.
With --remote, the remote document store is cleared too. The active chat
window is unaffected; this erases long-term memory only.

Examples:
  engram forget
  engram forget --owner alice --remote`

const forgetShortDesc string = "Delete an owner's archived memory"

func NewForgetCmd() *cobra.Command {
	cmder := &forgetCommander{}

	cmd := &cobra.Command{
		Use:   "forget",
		Short: forgetShortDesc,
		Long:  forgetLongDesc,
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

	cmd.Flags().BoolVar(&cmder.remote, "remote", false, "Also delete from the remote document store")

	return cmd
}

func (c *forgetCommander) run(ctx context.Context) error {
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

	wkr := worker.New(st, nil, worker.Config{}, c.logger)
	defer func() { _ = wkr.Close() }()

	if err := wkr.DeleteOwner(ctx, c.owner); err != nil {
		return fmt.Errorf("deleting local memory: %w", err)
	}
	fmt.Printf("  deleted local memory for owner %s\n", c.owner)

	if c.remote {
		if !cfg.Remote.Enabled {
			return fmt.Errorf("remote store is not enabled in config")
		}
		remote, err := bootstrap.Remote(ctx, cfg, c.logger)
		if err != nil {
			return fmt.Errorf("connecting to remote store: %w", err)
		}
		type ownerDeleter interface {
			DeleteOwner(ctx context.Context, ownerID string) error
		}
		if d, ok := remote.(ownerDeleter); ok {
			if err := d.DeleteOwner(ctx, c.owner); err != nil {
				return fmt.Errorf("deleting remote memory: %w", err)
			}
			fmt.Printf("  deleted remote memory for owner %s\n", c.owner)
		}
	}
	return nil
}
