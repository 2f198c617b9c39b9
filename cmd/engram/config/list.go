package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halfmoonlabs/engram/pkg/config"
)

const listLongDesc string = `List all configuration values.

Shows every known key with its resolved value: environment variables,
then the config.toml file, then built-in defaults.`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(configDir)
		},
	}

	return cmd
}

func runList(configDir string) error {
	v, err := config.InitViper(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	for _, key := range config.ValidConfigKeys() {
		fmt.Printf("%s = %v\n", key, v.Get(key))
	}
	return nil
}
