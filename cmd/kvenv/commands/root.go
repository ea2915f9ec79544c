// Package commands wires the kvenv CLI: cache, run-in, run-with, and
// cleanup, sharing one configuration and logger.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/kvenv/internal/config"
	"github.com/systmms/kvenv/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// NewRootCommand builds the kvenv command tree.
func NewRootCommand() *cobra.Command {
	cfg := &config.Config{Logger: logging.New(false, false)}

	var (
		configPath string
		debug      bool
		noColor    bool
	)

	root := &cobra.Command{
		Use:   "kvenv",
		Short: "Turn cloud secrets into process environments",
		Long: `kvenv resolves secrets from AWS Secrets Manager, Azure Key Vault,
Google Secret Manager, or HashiCorp Vault, composes them into an
environment, and either caches that environment as a file or launches a
process under it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded := config.New(configPath, logging.New(debug, noColor))
			if err := loaded.Load(); err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to kvenv.yaml (default \"./kvenv.yaml\", optional)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		NewCacheCommand(cfg),
		NewRunInCommand(cfg),
		NewRunWithCommand(cfg),
		NewCleanupCommand(cfg),
	)
	return root
}
