package backends

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/systmms/kvenv/pkg/backend"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// SecretManagerAPI is the slice of the Secret Manager client kvenv uses.
// Listing returns short secret names with the projects/<p>/secrets/
// resource prefix already stripped.
type SecretManagerAPI interface {
	AccessSecret(ctx context.Context, resource string) ([]byte, error)
	ListSecretNames(ctx context.Context, parent string) ([]string, error)
}

// GoogleClient resolves secrets from Google Secret Manager, always at the
// latest enabled version.
type GoogleClient struct {
	name      string
	projectID string
	client    SecretManagerAPI
	logger    *logging.Logger
}

// GoogleOption customizes client construction.
type GoogleOption func(*GoogleClient)

// WithSecretManagerClient injects a pre-built API client, used by tests.
func WithSecretManagerClient(client SecretManagerAPI) GoogleOption {
	return func(c *GoogleClient) {
		c.client = client
	}
}

// NewGoogleClient builds a Google backend from kvenv.yaml settings. The
// project comes from the project setting or GOOGLE_CLOUD_PROJECT; a
// credentials_file setting overrides application default credentials.
func NewGoogleClient(ctx context.Context, name string, settings map[string]interface{}, logger *logging.Logger, opts ...GoogleOption) (*GoogleClient, error) {
	c := &GoogleClient{name: name, logger: logger}
	for _, opt := range opts {
		opt(c)
	}

	c.projectID = stringSetting(settings, "project", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT")
	if c.projectID == "" {
		return nil, kverrors.ConfigError{
			Field:      "project",
			Message:    fmt.Sprintf("backend %q has no Google Cloud project", name),
			Suggestion: "Set project in kvenv.yaml or export GOOGLE_CLOUD_PROJECT",
		}
	}
	if c.client != nil {
		return c, nil
	}

	var clientOpts []option.ClientOption
	if credsFile := stringSetting(settings, "credentials_file", "GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credsFile))
	}
	sdkClient, err := secretmanager.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, kverrors.BackendError{
			Backend:    name,
			Op:         "auth",
			Suggestion: "Check your Google Cloud credentials (gcloud auth application-default login)",
			Err:        err,
		}
	}
	c.client = &secretManagerSDK{client: sdkClient}
	return c, nil
}

func (c *GoogleClient) Name() string {
	return c.name
}

func (c *GoogleClient) Traits() backend.Traits {
	return backend.Traits{Family: backend.FamilyJSON}
}

func (c *GoogleClient) FetchSingle(ctx context.Context, name string) (backend.Payload, error) {
	c.logger.Debug("Google: fetching secret %q", name)

	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, name)
	data, err := c.client.AccessSecret(ctx, resource)
	if err != nil {
		return backend.Payload{}, c.wrapError(name, err)
	}
	return backend.Payload{Name: name, Data: data}, nil
}

func (c *GoogleClient) FetchPrefixed(ctx context.Context, prefix string) ([]backend.Payload, error) {
	c.logger.Debug("Google: listing secrets with prefix %q", prefix)

	all, err := c.client.ListSecretNames(ctx, "projects/"+c.projectID)
	if err != nil {
		return nil, c.wrapError(prefix, err)
	}

	var names []string
	for _, n := range all {
		if strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
	}

	c.logger.Debug("Google: %d secret(s) match prefix %q", len(names), prefix)
	return fetchAll(ctx, names, c.FetchSingle)
}

func (c *GoogleClient) wrapError(secret string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return backend.NotFoundError{Backend: c.name, Name: secret}
	case codes.PermissionDenied, codes.Unauthenticated:
		return backend.AuthError{Backend: c.name, Message: err.Error()}
	}

	return kverrors.BackendError{
		Backend:    c.name,
		Secret:     secret,
		Op:         "fetch",
		Suggestion: "Check the project ID and your Secret Manager permissions",
		Err:        err,
	}
}

// secretManagerSDK adapts the real Secret Manager client to
// SecretManagerAPI.
type secretManagerSDK struct {
	client *secretmanager.Client
}

func (s *secretManagerSDK) AccessSecret(ctx context.Context, resource string) ([]byte, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resource,
	})
	if err != nil {
		return nil, err
	}
	return resp.GetPayload().GetData(), nil
}

func (s *secretManagerSDK) ListSecretNames(ctx context.Context, parent string) ([]string, error) {
	var names []string
	it := s.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{Parent: parent})
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		// Resource names look like projects/<p>/secrets/<name>.
		full := secret.GetName()
		if i := strings.LastIndexByte(full, '/'); i >= 0 {
			names = append(names, full[i+1:])
		}
	}
	return names, nil
}
