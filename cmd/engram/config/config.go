// Package configcmder provides the config command for managing persistent
// engram configuration stored in the .engram/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent engram configuration.

Configuration is stored as config.toml in the .engram/ directory and
provides default values for command flags. Environment variables with the
ENGRAM_ prefix and CLI flags take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  window.token_ceiling, window.hysteresis_ratio,
  embedding.provider, embedding.model, embedding.dimensions,
  store.sqlite_path, store.top_k, store.min_similarity,
  remote.enabled, remote.host, remote.collection,
  generation.provider, generation.model, generation.max_tokens,
  events.enabled, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  engram config set <key> <value>    Set a configuration value
  engram config get <key>            Get a configuration value
  engram config list                 List all configuration values

Examples:
  engram config set generation.provider anthropic
  engram config set embedding.model nomic-embed-text
  engram config get store.top_k
  engram config list`

const configShortDesc string = "Manage persistent engram configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
