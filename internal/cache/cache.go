// Package cache persists a composed environment as a JSON file so that a
// later kvenv invocation can launch processes without touching the secret
// store again. The file is a flat object from variable name to string
// value, created owner-readable only.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/systmms/kvenv/internal/env"
	kverrors "github.com/systmms/kvenv/internal/errors"
)

// tempPattern names cache files created without an explicit path.
const tempPattern = "kvenv-*.json"

// WriteOptions selects where the cache file goes. Path and Dir are
// mutually exclusive; with neither set the file lands in the system
// temporary directory.
type WriteOptions struct {
	Path string
	Dir  string
}

// Write stores the environment and returns the path of the file it wrote.
func Write(environment map[string]string, opts WriteOptions) (string, error) {
	data, err := json.MarshalIndent(environment, "", "  ")
	if err != nil {
		return "", kverrors.CacheError{Op: "write", Message: "cannot encode environment", Err: err}
	}
	data = append(data, '\n')

	if opts.Path != "" {
		return opts.Path, writeExact(opts.Path, data)
	}
	return writeTemp(opts.Dir, data)
}

func writeExact(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return kverrors.CacheError{Path: path, Op: "write", Message: "cannot create cache file", Err: err}
	}
	// The mode on OpenFile only applies to newly created files.
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		return kverrors.CacheError{Path: path, Op: "write", Message: "cannot restrict cache file permissions", Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return kverrors.CacheError{Path: path, Op: "write", Message: "cannot write cache file", Err: err}
	}
	if err := f.Close(); err != nil {
		return kverrors.CacheError{Path: path, Op: "write", Message: "cannot write cache file", Err: err}
	}
	return nil
}

func writeTemp(dir string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return "", kverrors.CacheError{Path: dir, Op: "write", Message: "cannot create cache file", Err: err}
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", kverrors.CacheError{Path: path, Op: "write", Message: "cannot write cache file", Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", kverrors.CacheError{Path: path, Op: "write", Message: "cannot write cache file", Err: err}
	}
	return path, nil
}

// Read loads a cache file and validates its shape: a JSON object whose
// members are strings keyed by valid variable names. Anything else is
// treated as corrupt.
func Read(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kverrors.CacheError{Path: path, Op: "read", Message: "cannot read cache file", Err: err}
	}

	var environment map[string]string
	if err := json.Unmarshal(data, &environment); err != nil {
		return nil, kverrors.CacheError{
			Path:    path,
			Op:      "read",
			Message: "cache file is not a JSON object of string values",
			Err:     err,
		}
	}

	names := make([]string, 0, len(environment))
	for name := range environment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !env.ValidName(name) {
			return nil, kverrors.CacheError{
				Path:    path,
				Op:      "read",
				Message: fmt.Sprintf("cache file contains invalid variable name %q", name),
			}
		}
	}
	return environment, nil
}

// Remove deletes a cache file. Removing a file that is already gone is an
// error so that a mistyped path does not pass silently.
func Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return kverrors.CacheError{Path: path, Op: "remove", Message: "cannot remove cache file", Err: err}
	}
	return nil
}
