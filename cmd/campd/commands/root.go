// Package commands defines all Cobra CLI commands for the campd binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/opencamphq/campd/internal/audit"
	"github.com/opencamphq/campd/internal/config"
	"github.com/opencamphq/campd/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "campd",
		Short: "campd — camp registration backend",
		Long: `campd is the backend service for camp registrations.

It manages camps, roles, attendees, and camp documents over a REST API,
and integrates with external providers where configured: an OpenAI vector
store for document search, S3-compatible object storage for raw files,
SMTP for confirmation mail, and Qdrant for camp similarity search.

Providers are configured via environment variables or a YAML config file
(~/.campd/config.yaml). Unconfigured providers degrade gracefully.
See 'campd --help' for available commands.`,
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.campd/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewProvidersCmd(),
		NewVersionCmd(),
	)

	return root
}
