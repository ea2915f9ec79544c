// Package backends implements the four secret store clients behind the
// backend.Client interface: AWS Secrets Manager, Azure Key Vault, Google
// Secret Manager, and HashiCorp Vault KV v2.
package backends

import (
	"context"
	"fmt"
	"os"

	"github.com/systmms/kvenv/pkg/backend"

	"github.com/systmms/kvenv/internal/config"
	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// New constructs a backend client from a kvenv.yaml entry (or a bare
// built-in type with environment-variable settings).
func New(ctx context.Context, name string, entry config.BackendConfig, logger *logging.Logger) (backend.Client, error) {
	switch entry.Type {
	case "aws":
		return NewAWSClient(ctx, name, entry.Settings, logger)
	case "azure":
		return NewAzureClient(name, entry.Settings, logger)
	case "google":
		return NewGoogleClient(ctx, name, entry.Settings, logger)
	case "vault":
		return NewVaultClient(name, entry.Settings, logger)
	default:
		return nil, kverrors.ConfigError{
			Field:      "type",
			Value:      entry.Type,
			Message:    fmt.Sprintf("unsupported backend type for %q", name),
			Suggestion: fmt.Sprintf("Use one of %v", config.BuiltinTypes),
		}
	}
}

// stringSetting reads a backend setting, falling back through the given
// environment variables.
func stringSetting(settings map[string]interface{}, key string, envVars ...string) string {
	if v, ok := settings[key].(string); ok && v != "" {
		return v
	}
	for _, ev := range envVars {
		if v := os.Getenv(ev); v != "" {
			return v
		}
	}
	return ""
}

func boolSetting(settings map[string]interface{}, key string) bool {
	v, _ := settings[key].(bool)
	return v
}
