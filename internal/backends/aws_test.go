package backends

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/kvenv/pkg/backend"

	"github.com/systmms/kvenv/internal/logging"
)

type mockSecretsManager struct {
	secrets map[string]string
	binary  map[string][]byte
	err     error
}

func (m *mockSecretsManager) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	name := aws.ToString(params.SecretId)
	if v, ok := m.secrets[name]; ok {
		return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
	}
	if b, ok := m.binary[name]; ok {
		return &secretsmanager.GetSecretValueOutput{SecretBinary: b}, nil
	}
	return nil, &types.ResourceNotFoundException{Message: aws.String("Secrets Manager can't find the specified secret.")}
}

func (m *mockSecretsManager) ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	var prefix string
	if len(params.Filters) > 0 && len(params.Filters[0].Values) > 0 {
		prefix = params.Filters[0].Values[0]
	}
	out := &secretsmanager.ListSecretsOutput{}
	for name := range m.secrets {
		if strings.HasPrefix(name, prefix) {
			out.SecretList = append(out.SecretList, types.SecretListEntry{Name: aws.String(name)})
		}
	}
	return out, nil
}

func newAWS(t *testing.T, mock *mockSecretsManager) *AWSClient {
	t.Helper()
	client, err := NewAWSClient(context.Background(), "aws", nil, logging.New(false, true),
		WithSecretsManagerClient(mock))
	require.NoError(t, err)
	return client
}

func TestAWSFetchSingle(t *testing.T) {
	t.Parallel()

	t.Run("string secret", func(t *testing.T) {
		t.Parallel()
		client := newAWS(t, &mockSecretsManager{secrets: map[string]string{
			"app-config": `{"DB_URL":"postgres://db"}`,
		}})
		payload, err := client.FetchSingle(context.Background(), "app-config")
		require.NoError(t, err)
		assert.Equal(t, "app-config", payload.Name)
		assert.JSONEq(t, `{"DB_URL":"postgres://db"}`, string(payload.Data))
	})

	t.Run("binary secret", func(t *testing.T) {
		t.Parallel()
		client := newAWS(t, &mockSecretsManager{binary: map[string][]byte{
			"blob": []byte(`{"A":"1"}`),
		}})
		payload, err := client.FetchSingle(context.Background(), "blob")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"A":"1"}`), payload.Data)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Parallel()
		client := newAWS(t, &mockSecretsManager{})
		_, err := client.FetchSingle(context.Background(), "nope")
		require.Error(t, err)

		var notFound backend.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "nope", notFound.Name)
	})
}

func TestAWSFetchPrefixed(t *testing.T) {
	t.Parallel()

	client := newAWS(t, &mockSecretsManager{secrets: map[string]string{
		"app-DB_URL":  "postgres://db",
		"app-API_KEY": "k-123",
		"other-VAR":   "ignored",
	}})

	payloads, err := client.FetchPrefixed(context.Background(), "app-")
	require.NoError(t, err)
	require.Len(t, payloads, 2)
	assert.Equal(t, "app-API_KEY", payloads[0].Name)
	assert.Equal(t, "app-DB_URL", payloads[1].Name)
	assert.Equal(t, "k-123", string(payloads[0].Data))
}

func TestAWSTraits(t *testing.T) {
	t.Parallel()

	client := newAWS(t, &mockSecretsManager{})
	assert.Equal(t, backend.FamilyJSON, client.Traits().Family)
	assert.False(t, client.Traits().DashToUnderscore)
}
