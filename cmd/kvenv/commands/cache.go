package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/kvenv/internal/cache"
	"github.com/systmms/kvenv/internal/config"
	"github.com/systmms/kvenv/internal/env"
)

// NewCacheCommand resolves secrets and writes the composed environment to
// a file for later run-with invocations. The file path is the command's
// only stdout output, so scripts can capture it.
func NewCacheCommand(cfg *config.Config) *cobra.Command {
	var (
		flags       secretFlags
		snapshotEnv bool
		outputFile  string
		outputDir   string
	)

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Resolve secrets into a reusable environment file",
		Long: `Cache resolves secrets once and stores the composed environment as a
JSON file, readable only by the owner. Pass --snapshot-env to bake the
current process environment into the file as well; the stored result is
then complete in itself.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// The snapshot reflects the environment at invocation
			// time, before any store has been contacted.
			var base map[string]string
			if snapshotEnv {
				base = env.Snapshot()
			}

			composed, err := resolveEnv(cmd.Context(), cfg, flags, base)
			if err != nil {
				return err
			}

			path, err := cache.Write(composed, cache.WriteOptions{Path: outputFile, Dir: outputDir})
			if err != nil {
				return err
			}

			cfg.Logger.Info("Cached %d variable(s) to %s", len(composed), path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	addSecretFlags(cmd, &flags)
	cmd.Flags().BoolVar(&snapshotEnv, "snapshot-env", false, "include the current process environment in the cached file")
	cmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "write the environment to this exact path")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "create the file in this directory instead of the system temp dir")
	cmd.MarkFlagsMutuallyExclusive("output-file", "output-dir")
	return cmd
}
