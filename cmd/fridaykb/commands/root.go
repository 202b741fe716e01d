// Package commands defines all Cobra CLI commands for the fridaykb binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/fridaylabs/friday-kb/internal/audit"
	"github.com/fridaylabs/friday-kb/internal/config"
	"github.com/fridaylabs/friday-kb/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "fridaykb",
		Short: "Friday KB — a personal knowledge base with grounded question answering",
		Long: `Friday KB ingests your documents — text, PDF, Word, spreadsheets, images,
audio, and video — into a local knowledge base and answers questions
grounded in their content.

Uploaded files are extracted, chunked, embedded, and stored; questions are
answered by an LLM that sees only the most relevant chunks as context.

Model and embedding providers are selected via environment variables or a
YAML config file (~/.fridaykb/config.yaml).
See 'fridaykb --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.fridaykb/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
