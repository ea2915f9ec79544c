package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/kvenv/pkg/backend"

	"github.com/systmms/kvenv/internal/cache"
	"github.com/systmms/kvenv/internal/config"
	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// fakeClient is a canned backend for command tests.
type fakeClient struct {
	traits   backend.Traits
	single   map[string]backend.Payload
	prefixed map[string][]backend.Payload
}

func (f *fakeClient) Name() string           { return "fake" }
func (f *fakeClient) Traits() backend.Traits { return f.traits }

func (f *fakeClient) FetchSingle(ctx context.Context, name string) (backend.Payload, error) {
	p, ok := f.single[name]
	if !ok {
		return backend.Payload{}, backend.NotFoundError{Backend: "fake", Name: name}
	}
	return p, nil
}

func (f *fakeClient) FetchPrefixed(ctx context.Context, prefix string) ([]backend.Payload, error) {
	return f.prefixed[prefix], nil
}

// installFakeBackend routes every backend construction to the fake for
// the duration of one test. Tests using it must not run in parallel.
func installFakeBackend(t *testing.T, client backend.Client) {
	t.Helper()
	orig := newBackend
	newBackend = func(ctx context.Context, name string, entry config.BackendConfig, logger *logging.Logger) (backend.Client, error) {
		return client, nil
	}
	t.Cleanup(func() { newBackend = orig })
}

func testConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kvenv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func jsonFake() *fakeClient {
	return &fakeClient{
		traits: backend.Traits{Family: backend.FamilyJSON},
		single: map[string]backend.Payload{
			"app": {Name: "app", Data: []byte(`{"DB_URL":"postgres://db","API_KEY":"k-123"}`)},
		},
	}
}

func TestCacheCommand(t *testing.T) {
	installFakeBackend(t, jsonFake())

	outFile := filepath.Join(t.TempDir(), "env.json")
	stdout, err := execute(t,
		"cache", "-c", testConfigFile(t),
		"-b", "aws", "-s", "app",
		"-o", outFile,
	)
	require.NoError(t, err)
	assert.Equal(t, outFile, strings.TrimSpace(stdout), "stdout must carry exactly the file path")

	stored, err := cache.Read(outFile)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DB_URL": "postgres://db", "API_KEY": "k-123"}, stored)
}

func TestCacheCommandSnapshotAndMask(t *testing.T) {
	installFakeBackend(t, jsonFake())
	t.Setenv("KVENV_TEST_BASE", "from-parent")

	outFile := filepath.Join(t.TempDir(), "env.json")
	_, err := execute(t,
		"cache", "-c", testConfigFile(t),
		"-b", "aws", "-s", "app",
		"--snapshot-env",
		"-m", "API_KEY", "-m", "KVENV_TEST_MASKED",
		"-o", outFile,
	)
	require.NoError(t, err)

	stored, err := cache.Read(outFile)
	require.NoError(t, err)
	assert.Equal(t, "from-parent", stored["KVENV_TEST_BASE"])
	assert.Equal(t, "postgres://db", stored["DB_URL"])
	_, masked := stored["API_KEY"]
	assert.False(t, masked, "masked variables must not be written")
}

func TestCacheCommandRejectsBothModes(t *testing.T) {
	installFakeBackend(t, jsonFake())

	_, err := execute(t,
		"cache", "-c", testConfigFile(t),
		"-b", "aws", "-s", "app", "-p", "app-",
	)
	require.Error(t, err)
}

func TestCacheCommandMissingSecret(t *testing.T) {
	installFakeBackend(t, jsonFake())

	_, err := execute(t,
		"cache", "-c", testConfigFile(t),
		"-b", "aws", "-s", "ghost",
	)
	require.Error(t, err)
	assert.Equal(t, kverrors.ExitBackend, kverrors.ExitCode(err))
}

func TestRunInCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}
	installFakeBackend(t, jsonFake())

	t.Run("child sees resolved variables", func(t *testing.T) {
		_, err := execute(t,
			"run-in", "-c", testConfigFile(t),
			"-b", "aws", "-s", "app",
			"--", "sh", "-c", `test "$DB_URL" = postgres://db`,
		)
		require.NoError(t, err)
	})

	t.Run("child exit code propagates", func(t *testing.T) {
		_, err := execute(t,
			"run-in", "-c", testConfigFile(t),
			"-b", "aws", "-s", "app",
			"--", "sh", "-c", "exit 7",
		)
		require.Error(t, err)
		assert.Equal(t, 7, kverrors.ExitCode(err))
		assert.True(t, kverrors.Silent(err), "the child already reported its own failure")
	})

	t.Run("launch failure is a kvenv error", func(t *testing.T) {
		_, err := execute(t,
			"run-in", "-c", testConfigFile(t),
			"-b", "aws", "-s", "app",
			"--", "definitely-not-a-real-command-kvenv",
		)
		require.Error(t, err)
		assert.Equal(t, kverrors.ExitLaunch, kverrors.ExitCode(err))
		assert.False(t, kverrors.Silent(err))
	})
}

func TestRunWithCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on sh")
	}

	writeEnvFile := func(t *testing.T) string {
		t.Helper()
		path, err := cache.Write(map[string]string{"CACHED_VAR": "cached-value"}, cache.WriteOptions{
			Path: filepath.Join(t.TempDir(), "env.json"),
		})
		require.NoError(t, err)
		return path
	}

	t.Run("loads the cached environment", func(t *testing.T) {
		_, err := execute(t,
			"run-with", "-c", testConfigFile(t),
			"-e", writeEnvFile(t),
			"--", "sh", "-c", `test "$CACHED_VAR" = cached-value`,
		)
		require.NoError(t, err)
	})

	t.Run("cleanup removes the file before launch", func(t *testing.T) {
		envFile := writeEnvFile(t)
		_, err := execute(t,
			"run-with", "-c", testConfigFile(t),
			"-e", envFile, "--cleanup",
			"--", "sh", "-c", "exit 0",
		)
		require.NoError(t, err)
		_, statErr := os.Stat(envFile)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("mask strips cached variables", func(t *testing.T) {
		_, err := execute(t,
			"run-with", "-c", testConfigFile(t),
			"-e", writeEnvFile(t), "-m", "CACHED_VAR",
			"--", "sh", "-c", `test -z "$CACHED_VAR"`,
		)
		require.NoError(t, err)
	})

	t.Run("corrupt file fails before launch", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
		_, err := execute(t,
			"run-with", "-c", testConfigFile(t),
			"-e", path,
			"--", "sh", "-c", "exit 0",
		)
		require.Error(t, err)
		assert.Equal(t, kverrors.ExitCache, kverrors.ExitCode(err))
	})
}

func TestCleanupCommand(t *testing.T) {
	path, err := cache.Write(map[string]string{"A": "1"}, cache.WriteOptions{
		Path: filepath.Join(t.TempDir(), "env.json"),
	})
	require.NoError(t, err)

	_, err = execute(t, "cleanup", "-c", testConfigFile(t), path)
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	_, err = execute(t, "cleanup", "-c", testConfigFile(t), path)
	require.Error(t, err)
	assert.Equal(t, kverrors.ExitCache, kverrors.ExitCode(err))
}

func TestUnknownBackendName(t *testing.T) {
	_, err := execute(t,
		"cache", "-c", testConfigFile(t),
		"-b", "nonexistent", "-s", "app",
	)
	require.Error(t, err)
	assert.Equal(t, kverrors.ExitConfig, kverrors.ExitCode(err))
}
