package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/kvenv/pkg/backend"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// fakeBackend serves canned payloads for either resolution mode.
type fakeBackend struct {
	traits   backend.Traits
	single   map[string]backend.Payload
	prefixed map[string][]backend.Payload
	delay    time.Duration
}

func (f *fakeBackend) Name() string           { return "fake" }
func (f *fakeBackend) Traits() backend.Traits { return f.traits }

func (f *fakeBackend) FetchSingle(ctx context.Context, name string) (backend.Payload, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return backend.Payload{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	p, ok := f.single[name]
	if !ok {
		return backend.Payload{}, backend.NotFoundError{Backend: "fake", Name: name}
	}
	return p, nil
}

func (f *fakeBackend) FetchPrefixed(ctx context.Context, prefix string) ([]backend.Payload, error) {
	return f.prefixed[prefix], nil
}

func testLogger() *logging.Logger {
	return logging.New(false, true)
}

func TestFragmentSingle(t *testing.T) {
	t.Parallel()

	client := &fakeBackend{
		traits: backend.Traits{Family: backend.FamilyJSON},
		single: map[string]backend.Payload{
			"app": {Name: "app", Data: []byte(`{"DB_URL":"postgres://db","PORT":8080}`)},
		},
	}

	frag, err := Fragment(context.Background(), client, testLogger(), Request{SecretName: "app"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DB_URL": "postgres://db", "PORT": "8080"}, frag.Map())
}

func TestFragmentPrefixed(t *testing.T) {
	t.Parallel()

	client := &fakeBackend{
		traits: backend.Traits{Family: backend.FamilyJSON},
		prefixed: map[string][]backend.Payload{
			"app-": {
				{Name: "app-B", Data: []byte("2")},
				{Name: "app-A", Data: []byte("1")},
			},
		},
	}

	frag, err := Fragment(context.Background(), client, testLogger(), Request{SecretPrefix: "app-"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, frag.Keys())
}

func TestFragmentValidation(t *testing.T) {
	t.Parallel()

	client := &fakeBackend{}

	_, err := Fragment(context.Background(), client, testLogger(), Request{})
	require.Error(t, err)
	assert.Equal(t, kverrors.ExitConfig, kverrors.ExitCode(err))

	_, err = Fragment(context.Background(), client, testLogger(), Request{SecretName: "a", SecretPrefix: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestFragmentTimeout(t *testing.T) {
	t.Parallel()

	client := &fakeBackend{
		delay: 2 * time.Second,
		single: map[string]backend.Payload{
			"slow": {Name: "slow", Data: []byte(`{}`)},
		},
	}

	start := time.Now()
	_, err := Fragment(context.Background(), client, testLogger(), Request{SecretName: "slow", TimeoutMs: 50})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFragmentNotFoundPassesThrough(t *testing.T) {
	t.Parallel()

	client := &fakeBackend{traits: backend.Traits{Family: backend.FamilyJSON}}
	_, err := Fragment(context.Background(), client, testLogger(), Request{SecretName: "ghost"})

	var notFound backend.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, kverrors.ExitBackend, kverrors.ExitCode(err))
}
