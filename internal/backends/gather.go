package backends

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/systmms/kvenv/pkg/backend"
)

// fetchAll retrieves the named secrets concurrently. Results come back in
// ascending name order no matter which fetch finishes first, and the first
// failure (in name order) cancels the remaining fetches and aborts the
// whole call.
func fetchAll(ctx context.Context, names []string, fetch func(ctx context.Context, name string) (backend.Payload, error)) ([]backend.Payload, error) {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	payloads := make([]backend.Payload, len(sorted))
	errs := make([]error, len(sorted))

	var wg sync.WaitGroup
	for i, name := range sorted {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			payload, err := fetch(ctx, name)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			payloads[i] = payload
		}(i, name)
	}
	wg.Wait()

	// Siblings cancelled by the failing fetch report context.Canceled;
	// surface the causing error instead when there is one.
	var firstErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = err
		}
		if !errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return payloads, nil
}
