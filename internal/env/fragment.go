// Package env holds the pure data transforms of kvenv: decoding raw secret
// payloads into an environment fragment, and composing fragments with the
// ambient process environment. Nothing in this package touches the network
// or the filesystem.
package env

import (
	"sort"

	kverrors "github.com/systmms/kvenv/internal/errors"
)

// Fragment is an ordered mapping from environment-variable name to value,
// produced by decoding one resolution's worth of secrets. Keys keep their
// insertion order, every key satisfies the variable-name grammar, and
// inserting a duplicate key fails.
type Fragment struct {
	keys   []string
	values map[string]string
}

// NewFragment creates an empty fragment.
func NewFragment() *Fragment {
	return &Fragment{values: make(map[string]string)}
}

// Set adds a variable to the fragment. It fails on a grammar-invalid name
// or a duplicate key; either aborts the whole decode.
func (f *Fragment) Set(key, value string) error {
	if !ValidName(key) {
		return kverrors.DecodeError{
			Key:     key,
			Message: "not a valid environment variable name",
		}
	}
	if _, exists := f.values[key]; exists {
		return kverrors.DecodeError{
			Key:     key,
			Message: "duplicate variable name",
		}
	}
	f.keys = append(f.keys, key)
	f.values[key] = value
	return nil
}

// Len returns the number of variables in the fragment.
func (f *Fragment) Len() int {
	return len(f.keys)
}

// Keys returns the variable names in insertion order.
func (f *Fragment) Keys() []string {
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	return keys
}

// Get returns the value for key.
func (f *Fragment) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Map returns the fragment as a plain map copy.
func (f *Fragment) Map() map[string]string {
	m := make(map[string]string, len(f.values))
	for k, v := range f.values {
		m[k] = v
	}
	return m
}

// FragmentFromMap builds a fragment from a plain map, inserting keys in
// ascending order. It fails on the same grammar violations Set does.
func FragmentFromMap(m map[string]string) (*Fragment, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	frag := NewFragment()
	for _, k := range keys {
		if err := frag.Set(k, m[k]); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

// ValidName reports whether name matches the environment-variable
// identifier grammar: letters, digits and underscore, not starting with a
// digit.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
