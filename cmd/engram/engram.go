// Package engramcmder
package engramcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/halfmoonlabs/engram/cmd/engram/chat"
	configcmder "github.com/halfmoonlabs/engram/cmd/engram/config"
	exportcmder "github.com/halfmoonlabs/engram/cmd/engram/export"
	forgetcmder "github.com/halfmoonlabs/engram/cmd/engram/forget"
	ingestcmder "github.com/halfmoonlabs/engram/cmd/engram/ingest"
	searchcmder "github.com/halfmoonlabs/engram/cmd/engram/search"
	statuscmder "github.com/halfmoonlabs/engram/cmd/engram/status"
	versioncmder "github.com/halfmoonlabs/engram/cmd/version"
)

const engramLongDesc string = `Engram is an on-device retrieval-augmented memory engine for
conversational agents.

Conversations run in a token-budgeted window; turns that fall out of it
are chunked, embedded, and archived locally, then retrieved back into
context when they become relevant again.

Common commands:
  engram chat        Interactive chat with long-term memory
  engram ingest      Embed and store a document for retrieval
  engram search      Query the local vector store
  engram status      Show store health and per-owner stats`

const engramShortDesc string = "Engram - Conversational Memory Engine"

func NewEngramCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engram",
		Short: engramShortDesc,
		Long:  engramLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Config directory (default ~/.engram)")
	cmd.PersistentFlags().StringP("owner", "o", "local", "Owner id scoping all memory operations")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(exportcmder.NewExportCmd())
	cmd.AddCommand(forgetcmder.NewForgetCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
