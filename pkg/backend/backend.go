// Package backend defines the contract between kvenv and the secret stores
// it can pull an environment from.
//
// A backend is one of the four supported secret-storage systems (AWS Secrets
// Manager, Azure Key Vault, Google Secret Manager, HashiCorp Vault). All of
// them are exposed through the same two fetch operations so the decoding and
// composition layers never see store-specific types.
//
// Backends fall into two families:
//
//   - FamilyJSON: one opaque payload per secret; in single-secret mode the
//     payload is expected to be a JSON object describing the environment.
//   - FamilyKeyValue: a secret already is a flat string map (Vault KV v2).
//
// Implementations live in internal/backends. They must be safe for use by
// multiple goroutines, support context cancellation on every fetch, and
// surface failures through the typed errors in this package rather than
// returning empty results.
package backend

import "context"

// Family classifies how a backend represents a single secret.
type Family int

const (
	// FamilyJSON backends return one opaque byte payload per secret.
	FamilyJSON Family = iota
	// FamilyKeyValue backends return a flat string map per secret.
	FamilyKeyValue
)

// Traits describes the decode-relevant properties of a backend.
type Traits struct {
	Family Family

	// DashToUnderscore is set by backends whose secret names cannot contain
	// underscores (Azure Key Vault). In prefixed mode the listed name has
	// every '-' replaced with '_' after the prefix is stripped, so that
	// stored names round-trip the environment-variable convention.
	DashToUnderscore bool
}

// Payload is one raw secret as returned by a backend, before decoding.
// Exactly one of Data and Map is populated, according to the family.
type Payload struct {
	// Name is the secret's name in the store, without any store-specific
	// resource prefix but including the user-supplied name prefix.
	Name string

	// Data holds the raw secret bytes (FamilyJSON).
	Data []byte

	// Map holds the flat key/value secret (FamilyKeyValue).
	Map map[string]string
}

// Client is implemented once per secret store.
//
// FetchPrefixed returns every secret whose name starts with prefix, sorted
// by ascending secret name. Implementations may fetch concurrently, but the
// returned order is always the sorted one. An empty result is valid for
// prefixed mode (no secrets matched); FetchSingle never returns an empty
// payload without an error.
type Client interface {
	// Name identifies the backend instance (the key from kvenv.yaml).
	Name() string

	// Traits reports the backend's family and naming rules.
	Traits() Traits

	FetchSingle(ctx context.Context, name string) (Payload, error)
	FetchPrefixed(ctx context.Context, prefix string) ([]Payload, error)
}

// NotFoundError indicates that a requested secret does not exist.
type NotFoundError struct {
	Backend string
	Name    string
}

func (e NotFoundError) Error() string {
	return "secret not found: " + e.Name + " in " + e.Backend
}

// AuthError indicates that authentication or authorization with the
// backend failed.
type AuthError struct {
	Backend string
	Message string
}

func (e AuthError) Error() string {
	return "authentication failed for " + e.Backend + ": " + e.Message
}
