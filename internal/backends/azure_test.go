package backends

import (
	"context"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/kvenv/pkg/backend"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

type mockKeyVault struct {
	secrets map[string]string
	err     error
}

func (m *mockKeyVault) GetSecret(ctx context.Context, name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.secrets[name]
	if !ok {
		return "", &azcore.ResponseError{StatusCode: 404, ErrorCode: "SecretNotFound"}
	}
	return v, nil
}

func (m *mockKeyVault) ListSecretNames(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	names := make([]string, 0, len(m.secrets))
	for name := range m.secrets {
		names = append(names, name)
	}
	return names, nil
}

func newAzure(t *testing.T, mock *mockKeyVault) *AzureClient {
	t.Helper()
	client, err := NewAzureClient("azure", nil, logging.New(false, true), WithKeyVaultClient(mock))
	require.NoError(t, err)
	return client
}

func TestAzureRequiresVaultURL(t *testing.T) {
	// No t.Parallel: manipulates the process environment.
	t.Setenv("AZURE_KEYVAULT_URL", "")

	_, err := NewAzureClient("azure", nil, logging.New(false, true))
	require.Error(t, err)
	assert.Equal(t, kverrors.ExitConfig, kverrors.ExitCode(err))
}

func TestAzureFetchSingle(t *testing.T) {
	t.Parallel()

	client := newAzure(t, &mockKeyVault{secrets: map[string]string{
		"app-config": `{"KEY":"value"}`,
	}})

	payload, err := client.FetchSingle(context.Background(), "app-config")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"KEY":"value"}`), payload.Data)

	_, err = client.FetchSingle(context.Background(), "missing")
	var notFound backend.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Name)
}

func TestAzureFetchPrefixed(t *testing.T) {
	t.Parallel()

	client := newAzure(t, &mockKeyVault{secrets: map[string]string{
		"app-db-url":  "postgres://db",
		"app-api-key": "k-123",
		"unrelated":   "x",
	}})

	payloads, err := client.FetchPrefixed(context.Background(), "app-")
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "app-api-key", payloads[0].Name)
	assert.Equal(t, "app-db-url", payloads[1].Name)
}

func TestAzureTraits(t *testing.T) {
	t.Parallel()

	client := newAzure(t, &mockKeyVault{})
	traits := client.Traits()
	assert.Equal(t, backend.FamilyJSON, traits.Family)
	assert.True(t, traits.DashToUnderscore, "Key Vault names use dashes where variables use underscores")
}
