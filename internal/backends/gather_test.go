package backends

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/kvenv/pkg/backend"
)

func TestFetchAllOrdersResults(t *testing.T) {
	t.Parallel()

	// Finish in reverse name order to prove ordering is by name, not by
	// completion.
	delays := map[string]time.Duration{
		"a-first":  30 * time.Millisecond,
		"b-second": 15 * time.Millisecond,
		"c-third":  0,
	}
	payloads, err := fetchAll(context.Background(), []string{"c-third", "a-first", "b-second"},
		func(ctx context.Context, name string) (backend.Payload, error) {
			time.Sleep(delays[name])
			return backend.Payload{Name: name, Data: []byte(name)}, nil
		})
	require.NoError(t, err)

	names := make([]string, len(payloads))
	for i, p := range payloads {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"a-first", "b-second", "c-third"}, names)
}

func TestFetchAllCancelsOnFirstError(t *testing.T) {
	t.Parallel()

	boom := errors.New("store unavailable")
	var mu sync.Mutex
	cancelled := 0

	_, err := fetchAll(context.Background(), []string{"a", "b", "c", "d"},
		func(ctx context.Context, name string) (backend.Payload, error) {
			if name == "b" {
				return backend.Payload{}, boom
			}
			select {
			case <-ctx.Done():
				mu.Lock()
				cancelled++
				mu.Unlock()
				return backend.Payload{}, ctx.Err()
			case <-time.After(2 * time.Second):
				return backend.Payload{Name: name}, nil
			}
		})
	require.ErrorIs(t, err, boom)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, cancelled, "the failure should cancel the siblings")
}

func TestFetchAllEmpty(t *testing.T) {
	t.Parallel()

	payloads, err := fetchAll(context.Background(), nil,
		func(ctx context.Context, name string) (backend.Payload, error) {
			t.Fatal("fetch should not be called")
			return backend.Payload{}, nil
		})
	require.NoError(t, err)
	assert.Empty(t, payloads)
}
