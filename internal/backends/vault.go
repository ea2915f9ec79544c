package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/systmms/kvenv/pkg/backend"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// keyringService is the OS keyring entry consulted when neither the
// config nor VAULT_TOKEN provides a token.
const (
	keyringService = "kvenv"
	keyringUser    = "vault-token"
)

// VaultAPI is the slice of the Vault KV v2 API kvenv uses. Paths are
// relative to the mount; ListKeys returns the raw key listing of one
// directory, where a trailing slash marks a sub-directory.
type VaultAPI interface {
	ReadSecret(ctx context.Context, path string) (map[string]string, error)
	ListKeys(ctx context.Context, dir string) ([]string, error)
}

// VaultClient resolves secrets from a HashiCorp Vault KV v2 mount. Each
// secret is already a set of key-value pairs, so no JSON decoding happens
// downstream.
type VaultClient struct {
	name   string
	client VaultAPI
	logger *logging.Logger
}

// VaultOption customizes client construction.
type VaultOption func(*VaultClient)

// WithVaultAPI injects a pre-built API client, used by tests.
func WithVaultAPI(client VaultAPI) VaultOption {
	return func(c *VaultClient) {
		c.client = client
	}
}

// NewVaultClient builds a Vault backend from kvenv.yaml settings. The
// address comes from the address setting or VAULT_ADDR; the token from
// the token setting, VAULT_TOKEN, or the OS keyring entry kvenv/vault-token.
func NewVaultClient(name string, settings map[string]interface{}, logger *logging.Logger, opts ...VaultOption) (*VaultClient, error) {
	c := &VaultClient{name: name, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.client != nil {
		return c, nil
	}

	address := stringSetting(settings, "address", "VAULT_ADDR")
	if address == "" {
		return nil, kverrors.ConfigError{
			Field:      "address",
			Message:    fmt.Sprintf("backend %q has no Vault address", name),
			Suggestion: "Set address in kvenv.yaml or export VAULT_ADDR",
		}
	}

	token := stringSetting(settings, "token", "VAULT_TOKEN")
	if token == "" {
		if stored, err := keyring.Get(keyringService, keyringUser); err == nil {
			logger.Debug("Vault: using token from OS keyring")
			token = stored
		}
	}
	if token == "" {
		return nil, kverrors.ConfigError{
			Field:      "token",
			Message:    fmt.Sprintf("backend %q has no Vault token", name),
			Suggestion: "Export VAULT_TOKEN or store a token in the OS keyring under kvenv/vault-token",
		}
	}

	mount := stringSetting(settings, "mount")
	if mount == "" {
		mount = "secret"
	}

	c.client = newVaultHTTP(vaultHTTPConfig{
		Address:       strings.TrimRight(address, "/"),
		Token:         token,
		Mount:         mount,
		Namespace:     stringSetting(settings, "namespace", "VAULT_NAMESPACE"),
		TLSSkipVerify: boolSetting(settings, "tls_skip_verify"),
	})
	return c, nil
}

func (c *VaultClient) Name() string {
	return c.name
}

func (c *VaultClient) Traits() backend.Traits {
	return backend.Traits{Family: backend.FamilyKeyValue}
}

func (c *VaultClient) FetchSingle(ctx context.Context, name string) (backend.Payload, error) {
	c.logger.Debug("Vault: reading secret %q", name)

	pairs, err := c.client.ReadSecret(ctx, name)
	if err != nil {
		return backend.Payload{}, c.wrapError(name, err)
	}
	return backend.Payload{Name: name, Map: pairs}, nil
}

// FetchPrefixed lists the directory the prefix points into and reads every
// leaf secret whose full path starts with the prefix. Sub-directories are
// not descended into.
func (c *VaultClient) FetchPrefixed(ctx context.Context, prefix string) ([]backend.Payload, error) {
	dir := ""
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		dir = prefix[:i+1]
	}
	c.logger.Debug("Vault: listing %q for prefix %q", dir, prefix)

	keys, err := c.client.ListKeys(ctx, dir)
	if err != nil {
		// Vault answers 404 for an empty directory; in prefixed mode
		// that simply means zero matches.
		if apiErr, ok := err.(*vaultAPIError); ok && apiErr.Status == 404 {
			return nil, nil
		}
		return nil, c.wrapError(prefix, err)
	}

	var names []string
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		full := dir + key
		if strings.HasPrefix(full, prefix) {
			names = append(names, full)
		}
	}

	c.logger.Debug("Vault: %d secret(s) match prefix %q", len(names), prefix)
	return fetchAll(ctx, names, func(ctx context.Context, name string) (backend.Payload, error) {
		return c.FetchSingle(ctx, name)
	})
}

func (c *VaultClient) wrapError(secret string, err error) error {
	if apiErr, ok := err.(*vaultAPIError); ok {
		switch apiErr.Status {
		case 404:
			return backend.NotFoundError{Backend: c.name, Name: secret}
		case 401, 403:
			return backend.AuthError{Backend: c.name, Message: apiErr.Error()}
		}
	}

	return kverrors.BackendError{
		Backend:    c.name,
		Secret:     secret,
		Op:         "fetch",
		Suggestion: "Check the Vault address, mount, and your network connectivity",
		Err:        err,
	}
}
