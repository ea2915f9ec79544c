package commands

import (
	"github.com/spf13/cobra"

	"github.com/systmms/kvenv/internal/config"
	"github.com/systmms/kvenv/internal/env"
	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/execenv"
)

// NewRunInCommand resolves secrets and immediately launches a command
// under the composed environment.
func NewRunInCommand(cfg *config.Config) *cobra.Command {
	var (
		flags    secretFlags
		printEnv bool
	)

	cmd := &cobra.Command{
		Use:   "run-in -- command [args...]",
		Short: "Resolve secrets and run a command under them",
		Long: `Run-in resolves secrets, composes them over the current environment,
and launches the command with that environment replacing its own. The
child's exit code becomes kvenv's exit code.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			composed, err := resolveEnv(cmd.Context(), cfg, flags, env.Snapshot())
			if err != nil {
				return err
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

	addSecretFlags(cmd, &flags)
	cmd.Flags().BoolVar(&printEnv, "print-env", false, "list the variable names (values masked) before launching")
	return cmd
}
