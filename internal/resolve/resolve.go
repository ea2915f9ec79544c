// Package resolve drives one secret resolution: fetch from the backend,
// decode into an environment fragment. One deadline covers the whole
// operation, including every concurrent fetch of a prefixed resolution.
package resolve

import (
	"context"
	"time"

	"github.com/systmms/kvenv/pkg/backend"

	"github.com/systmms/kvenv/internal/env"
	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// Request selects what to resolve. Exactly one of SecretName and
// SecretPrefix must be set.
type Request struct {
	SecretName   string
	SecretPrefix string
	TimeoutMs    int
}

// Fragment resolves the request against the backend and returns the
// decoded environment fragment.
func Fragment(ctx context.Context, client backend.Client, logger *logging.Logger, req Request) (*env.Fragment, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	if req.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	traits := client.Traits()
	start := time.Now()

	if req.SecretName != "" {
		payload, err := client.FetchSingle(ctx, req.SecretName)
		if err != nil {
			return nil, err
		}
		frag, err := env.DecodeSingle(traits, payload)
		if err != nil {
			return nil, err
		}
		logger.Debug("Resolved %q to %d variable(s) in %s", req.SecretName, frag.Len(), time.Since(start).Round(time.Millisecond))
		return frag, nil
	}

	payloads, err := client.FetchPrefixed(ctx, req.SecretPrefix)
	if err != nil {
		return nil, err
	}
	frag, err := env.DecodePrefixed(traits, req.SecretPrefix, payloads)
	if err != nil {
		return nil, err
	}
	logger.Debug("Resolved prefix %q to %d variable(s) from %d secret(s) in %s",
		req.SecretPrefix, frag.Len(), len(payloads), time.Since(start).Round(time.Millisecond))
	return frag, nil
}

func validate(req Request) error {
	switch {
	case req.SecretName == "" && req.SecretPrefix == "":
		return kverrors.ConfigError{
			Field:      "secret-name",
			Message:    "no secret selected",
			Suggestion: "Pass --secret-name or --secret-prefix",
		}
	case req.SecretName != "" && req.SecretPrefix != "":
		return kverrors.ConfigError{
			Field:      "secret-name",
			Message:    "--secret-name and --secret-prefix are mutually exclusive",
			Suggestion: "Pick one resolution mode",
		}
	}
	return nil
}
