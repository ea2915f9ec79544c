package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/kvenv/internal/cache"
	"github.com/systmms/kvenv/internal/config"
	"github.com/systmms/kvenv/internal/env"
	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/execenv"
)

// NewRunWithCommand launches a command under an environment loaded from a
// cache file, without contacting any secret store.
func NewRunWithCommand(cfg *config.Config) *cobra.Command {
	var (
		envFile  string
		masks    []string
		cleanup  bool
		printEnv bool
	)

	cmd := &cobra.Command{
		Use:   "run-with -- command [args...]",
		Short: "Run a command under a previously cached environment",
		Long: `Run-with reads an environment file produced by cache, composes it over
the current environment, and launches the command. With --cleanup the
file is removed once it has been loaded, before the child starts.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stored, err := cache.Read(envFile)
			if err != nil {
				return err
			}
			protectValues(cfg.Logger, stored)
			frag, err := env.FragmentFromMap(stored)
			if err != nil {
				return err
			}
			composed := env.Compose(env.Snapshot(), frag, masks)

			if cleanup {
				if err := cache.Remove(envFile); err != nil {
					return err
				}
				cfg.Logger.Debug("Removed %s", envFile)
			}

			wrapped := execenv.WrapEnvironment(composed)
			defer execenv.DestroyEnvironment(wrapped)

			code, err := execenv.New(cfg.Logger).Run(cmd.Context(), execenv.Options{
				Command:     commandArgs(cmd, args),
				Environment: wrapped,
				PrintEnv:    printEnv,
			})
			if err != nil {
				return err
			}
			if code != 0 {
				return kverrors.ChildExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&envFile, "env-file", "e", "", "environment file produced by kvenv cache")
	_ = cmd.MarkFlagRequired("env-file")
	cmd.Flags().StringArrayVarP(&masks, "mask", "m", nil, "variable to remove from the final environment (repeatable)")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "remove the environment file after loading it")
	cmd.Flags().BoolVar(&printEnv, "print-env", false, "list the variable names (values masked) before launching")
	return cmd
}
