package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/kvenv/internal/cache"
	"github.com/systmms/kvenv/internal/config"
)

// NewCleanupCommand removes a cache file once it is no longer needed.
func NewCleanupCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <env-file>",
		Short: "Remove a cached environment file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cache.Remove(args[0]); err != nil {
				return err
			}
			cfg.Logger.Info("Removed %s", args[0])
			return nil
		},
	}
}
