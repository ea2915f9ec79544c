package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/systmms/kvenv/pkg/backend"

	"github.com/systmms/kvenv/internal/backends"
	"github.com/systmms/kvenv/internal/config"
	"github.com/systmms/kvenv/internal/env"
	"github.com/systmms/kvenv/internal/logging"
	"github.com/systmms/kvenv/internal/resolve"
)

// newBackend is swapped out by command tests.
var newBackend func(ctx context.Context, name string, entry config.BackendConfig, logger *logging.Logger) (backend.Client, error) = backends.New

// secretFlags are the selection flags shared by cache and run-in.
type secretFlags struct {
	backendName  string
	secretName   string
	secretPrefix string
	masks        []string
}

func addSecretFlags(cmd *cobra.Command, flags *secretFlags) {
	cmd.Flags().StringVarP(&flags.backendName, "backend", "b", "", "backend name from kvenv.yaml, or a built-in type (aws, azure, google, vault)")
	_ = cmd.MarkFlagRequired("backend")

	cmd.Flags().StringVarP(&flags.secretName, "secret-name", "s", "", "resolve a single secret by name")
	cmd.Flags().StringVarP(&flags.secretPrefix, "secret-prefix", "p", "", "resolve every secret whose name starts with this prefix")
	cmd.MarkFlagsMutuallyExclusive("secret-name", "secret-prefix")
	cmd.MarkFlagsOneRequired("secret-name", "secret-prefix")

	cmd.Flags().StringArrayVarP(&flags.masks, "mask", "m", nil, "variable to remove from the final environment (repeatable)")
}

// resolveEnv runs one full resolution and composes the result over base.
func resolveEnv(ctx context.Context, cfg *config.Config, flags secretFlags, base map[string]string) (map[string]string, error) {
	entry, err := cfg.GetBackend(flags.backendName)
	if err != nil {
		return nil, err
	}
	client, err := newBackend(ctx, flags.backendName, entry, cfg.Logger)
	if err != nil {
		return nil, err
	}

	frag, err := resolve.Fragment(ctx, client, cfg.Logger, resolve.Request{
		SecretName:   flags.secretName,
		SecretPrefix: flags.secretPrefix,
		TimeoutMs:    entry.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	protectValues(cfg.Logger, frag.Map())
	return env.Compose(base, frag, flags.masks), nil
}

// protectValues registers resolved secret values with the logger so they
// cannot leak through any later diagnostic line.
func protectValues(logger *logging.Logger, values map[string]string) {
	secrets := make([]string, 0, len(values))
	for _, v := range values {
		secrets = append(secrets, v)
	}
	logger.Protect(secrets...)
}

// commandArgs returns the child command line. Everything after -- belongs
// to the child verbatim.
func commandArgs(cmd *cobra.Command, args []string) []string {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		return args[dash:]
	}
	return args
}
