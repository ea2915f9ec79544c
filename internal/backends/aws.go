package backends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/systmms/kvenv/pkg/backend"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// SecretsManagerAPI is the slice of the Secrets Manager client kvenv
// uses. Tests substitute a mock implementation.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSClient resolves secrets from AWS Secrets Manager. Payloads are the
// raw secret strings, so the single-secret mode expects a JSON object
// document.
type AWSClient struct {
	name   string
	client SecretsManagerAPI
	logger *logging.Logger
}

// AWSOption customizes client construction.
type AWSOption func(*AWSClient)

// WithSecretsManagerClient injects a pre-built API client, used by tests.
func WithSecretsManagerClient(client SecretsManagerAPI) AWSOption {
	return func(c *AWSClient) {
		c.client = client
	}
}

// NewAWSClient builds an AWS backend from kvenv.yaml settings. Region and
// credentials follow the standard SDK chain unless overridden by the
// region, access_key_id/secret_access_key, or endpoint settings.
func NewAWSClient(ctx context.Context, name string, settings map[string]interface{}, logger *logging.Logger, opts ...AWSOption) (*AWSClient, error) {
	c := &AWSClient{name: name, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.client != nil {
		return c, nil
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region := stringSetting(settings, "region", "AWS_REGION", "AWS_DEFAULT_REGION"); region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	accessKey := stringSetting(settings, "access_key_id")
	secretKey := stringSetting(settings, "secret_access_key")
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, kverrors.BackendError{
			Backend:    name,
			Op:         "auth",
			Suggestion: "Check your AWS credentials and region configuration",
			Err:        err,
		}
	}

	var clientOpts []func(*secretsmanager.Options)
	if endpoint := stringSetting(settings, "endpoint"); endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	c.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	return c, nil
}

func (c *AWSClient) Name() string {
	return c.name
}

func (c *AWSClient) Traits() backend.Traits {
	return backend.Traits{Family: backend.FamilyJSON}
}

// FetchSingle retrieves one secret value. Binary secrets come back as
// their raw bytes.
func (c *AWSClient) FetchSingle(ctx context.Context, name string) (backend.Payload, error) {
	c.logger.Debug("AWS: fetching secret %q", name)

	out, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return backend.Payload{}, c.wrapError(name, err)
	}

	payload := backend.Payload{Name: name}
	switch {
	case out.SecretString != nil:
		payload.Data = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		payload.Data = out.SecretBinary
	default:
		return backend.Payload{}, kverrors.BackendError{
			Backend: c.name,
			Secret:  name,
			Op:      "fetch",
			Err:     fmt.Errorf("secret has neither a string nor a binary value"),
		}
	}
	return payload, nil
}

// FetchPrefixed lists all secrets whose name starts with prefix and
// fetches their values concurrently.
func (c *AWSClient) FetchPrefixed(ctx context.Context, prefix string) ([]backend.Payload, error) {
	c.logger.Debug("AWS: listing secrets with prefix %q", prefix)

	input := &secretsmanager.ListSecretsInput{
		Filters: []types.Filter{{
			Key:    types.FilterNameStringTypeName,
			Values: []string{prefix},
		}},
	}

	var names []string
	paginator := secretsmanager.NewListSecretsPaginator(c.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, c.wrapError(prefix, err)
		}
		for _, entry := range page.SecretList {
			// The name filter matches on prefix, but keep an exact
			// guard so a looser server match cannot slip through.
			if entry.Name != nil && strings.HasPrefix(*entry.Name, prefix) {
				names = append(names, *entry.Name)
			}
		}
	}

	c.logger.Debug("AWS: %d secret(s) match prefix %q", len(names), prefix)
	return fetchAll(ctx, names, c.FetchSingle)
}

func (c *AWSClient) wrapError(secret string, err error) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return backend.NotFoundError{Backend: c.name, Name: secret}
	}

	msg := err.Error()
	for _, marker := range []string{"AccessDeniedException", "UnrecognizedClientException", "InvalidSignatureException", "ExpiredTokenException", "no EC2 IMDS role found", "failed to retrieve credentials"} {
		if strings.Contains(msg, marker) {
			return backend.AuthError{Backend: c.name, Message: msg}
		}
	}

	return kverrors.BackendError{
		Backend:    c.name,
		Secret:     secret,
		Op:         "fetch",
		Suggestion: "Check your AWS credentials and network connectivity",
		Err:        err,
	}
}
