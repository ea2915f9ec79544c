package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/kvenv/pkg/backend"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// KeyVaultAPI is the slice of the Key Vault secrets client kvenv uses.
// The azsecrets pager cannot be constructed outside the SDK, so listing
// is folded into one call here and tests mock this interface instead.
type KeyVaultAPI interface {
	GetSecret(ctx context.Context, name string) (string, error)
	ListSecretNames(ctx context.Context) ([]string, error)
}

// AzureClient resolves secrets from an Azure Key Vault. Key Vault secret
// names cannot contain underscores, so prefixed resolution translates
// dashes to underscores when deriving variable names.
type AzureClient struct {
	name   string
	client KeyVaultAPI
	logger *logging.Logger
}

// AzureOption customizes client construction.
type AzureOption func(*AzureClient)

// WithKeyVaultClient injects a pre-built API client, used by tests.
func WithKeyVaultClient(client KeyVaultAPI) AzureOption {
	return func(c *AzureClient) {
		c.client = client
	}
}

// NewAzureClient builds an Azure backend from kvenv.yaml settings. The
// vault URL comes from the vault_url setting or AZURE_KEYVAULT_URL.
// Service-principal settings (tenant_id, client_id, client_secret) take
// precedence over the default credential chain.
func NewAzureClient(name string, settings map[string]interface{}, logger *logging.Logger, opts ...AzureOption) (*AzureClient, error) {
	c := &AzureClient{name: name, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.client != nil {
		return c, nil
	}

	vaultURL := stringSetting(settings, "vault_url", "AZURE_KEYVAULT_URL")
	if vaultURL == "" {
		return nil, kverrors.ConfigError{
			Field:      "vault_url",
			Message:    fmt.Sprintf("backend %q has no Key Vault URL", name),
			Suggestion: "Set vault_url in kvenv.yaml or export AZURE_KEYVAULT_URL",
		}
	}

	cred, err := azureCredential(settings)
	if err != nil {
		return nil, kverrors.BackendError{
			Backend:    name,
			Op:         "auth",
			Suggestion: "Check your Azure credentials (az login or service principal settings)",
			Err:        err,
		}
	}

	sdkClient, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, kverrors.BackendError{Backend: name, Op: "auth", Err: err}
	}
	c.client = &keyVaultSDK{client: sdkClient}
	return c, nil
}

func azureCredential(settings map[string]interface{}) (azcore.TokenCredential, error) {
	tenantID := stringSetting(settings, "tenant_id", "AZURE_TENANT_ID")
	clientID := stringSetting(settings, "client_id", "AZURE_CLIENT_ID")
	clientSecret := stringSetting(settings, "client_secret", "AZURE_CLIENT_SECRET")
	if tenantID != "" && clientID != "" && clientSecret != "" {
		return azidentity.NewClientSecretCredential(tenantID, clientID, clientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

func (c *AzureClient) Name() string {
	return c.name
}

func (c *AzureClient) Traits() backend.Traits {
	return backend.Traits{Family: backend.FamilyJSON, DashToUnderscore: true}
}

func (c *AzureClient) FetchSingle(ctx context.Context, name string) (backend.Payload, error) {
	c.logger.Debug("Azure: fetching secret %q", name)

	value, err := c.client.GetSecret(ctx, name)
	if err != nil {
		return backend.Payload{}, c.wrapError(name, err)
	}
	return backend.Payload{Name: name, Data: []byte(value)}, nil
}

func (c *AzureClient) FetchPrefixed(ctx context.Context, prefix string) ([]backend.Payload, error) {
	c.logger.Debug("Azure: listing secrets with prefix %q", prefix)

	all, err := c.client.ListSecretNames(ctx)
	if err != nil {
		return nil, c.wrapError(prefix, err)
	}

	var names []string
	for _, n := range all {
		if strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
	}

	c.logger.Debug("Azure: %d secret(s) match prefix %q", len(names), prefix)
	return fetchAll(ctx, names, c.FetchSingle)
}

func (c *AzureClient) wrapError(secret string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return backend.NotFoundError{Backend: c.name, Name: secret}
		case 401, 403:
			return backend.AuthError{Backend: c.name, Message: err.Error()}
		}
	}
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return backend.AuthError{Backend: c.name, Message: err.Error()}
	}

	return kverrors.BackendError{
		Backend:    c.name,
		Secret:     secret,
		Op:         "fetch",
		Suggestion: "Check the vault URL and your Azure permissions",
		Err:        err,
	}
}

// keyVaultSDK adapts the real azsecrets client to KeyVaultAPI.
type keyVaultSDK struct {
	client *azsecrets.Client
}

func (k *keyVaultSDK) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := k.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", err
	}
	if resp.Value == nil {
		return "", nil
	}
	return *resp.Value, nil
}

func (k *keyVaultSDK) ListSecretNames(ctx context.Context) ([]string, error) {
	var names []string
	pager := k.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			if item.ID != nil {
				names = append(names, item.ID.Name())
			}
		}
	}
	return names, nil
}
