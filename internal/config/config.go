// Package config loads the optional kvenv.yaml definition file. The file
// names backends and carries their connection settings; when it is absent
// the four built-in backend types can still be selected directly and
// configured from environment variables.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	kverrors "github.com/systmms/kvenv/internal/errors"
	"github.com/systmms/kvenv/internal/logging"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = "kvenv.yaml"

// DefaultTimeoutMs bounds a whole resolution when a backend entry does not
// set its own timeout.
const DefaultTimeoutMs = 30000

// BuiltinTypes are the backend types kvenv ships with. A --backend value
// that matches one of these works without a kvenv.yaml entry.
var BuiltinTypes = []string{"aws", "azure", "google", "vault"}

// Config carries the runtime context shared by all commands.
type Config struct {
	Path       string
	Logger     *logging.Logger
	Definition *Definition

	explicitPath bool
}

// Definition is the parsed kvenv.yaml document.
type Definition struct {
	Version  int                      `yaml:"version"`
	Backends map[string]BackendConfig `yaml:"backends"`
}

// BackendConfig is one entry of the backends map. Settings beyond the two
// named fields are backend-specific and collected into Settings.
type BackendConfig struct {
	Type      string                 `yaml:"type"`
	TimeoutMs int                    `yaml:"timeout_ms"`
	Settings  map[string]interface{} `yaml:",inline"`
}

// Timeout returns the entry's resolution timeout in milliseconds.
func (b BackendConfig) Timeout() int {
	if b.TimeoutMs > 0 {
		return b.TimeoutMs
	}
	return DefaultTimeoutMs
}

// New creates a config rooted at path. An empty path means DefaultPath,
// treated as optional.
func New(path string, logger *logging.Logger) *Config {
	cfg := &Config{
		Path:         path,
		Logger:       logger,
		explicitPath: path != "",
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	return cfg
}

// Load reads and validates the definition file. A missing file is an error
// only when the path was given explicitly; otherwise kvenv runs with an
// empty definition.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) && !c.explicitPath {
			c.Logger.Debug("No %s found, using built-in backends only", DefaultPath)
			c.Definition = &Definition{Backends: map[string]BackendConfig{}}
			return nil
		}
		return kverrors.ConfigError{
			Field:      "config",
			Value:      c.Path,
			Message:    "cannot read configuration file",
			Suggestion: "Check that the file exists and is readable",
		}
	}

	var document interface{}
	if err := yaml.Unmarshal(data, &document); err != nil {
		return kverrors.ConfigError{
			Field:      "config",
			Value:      c.Path,
			Message:    fmt.Sprintf("invalid YAML: %v", err),
			Suggestion: "Fix the YAML syntax in the configuration file",
		}
	}
	if document == nil {
		// An empty file is a valid, empty definition.
		c.Definition = &Definition{Backends: map[string]BackendConfig{}}
		return nil
	}
	if err := validateDefinition(document); err != nil {
		return err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return kverrors.ConfigError{
			Field:   "config",
			Value:   c.Path,
			Message: fmt.Sprintf("cannot parse configuration: %v", err),
		}
	}
	if def.Backends == nil {
		def.Backends = map[string]BackendConfig{}
	}
	c.Definition = &def
	c.Logger.Debug("Loaded %s with %d backend(s)", c.Path, len(def.Backends))
	return nil
}

// GetBackend resolves a --backend value to its configuration. Named
// entries from kvenv.yaml win; otherwise a bare built-in type name gets an
// empty configuration so settings fall back to environment variables.
func (c *Config) GetBackend(name string) (BackendConfig, error) {
	if c.Definition != nil {
		if entry, ok := c.Definition.Backends[name]; ok {
			return entry, nil
		}
	}
	for _, t := range BuiltinTypes {
		if name == t {
			return BackendConfig{Type: name, Settings: map[string]interface{}{}}, nil
		}
	}
	return BackendConfig{}, kverrors.ConfigError{
		Field:      "backend",
		Value:      name,
		Message:    "unknown backend",
		Suggestion: fmt.Sprintf("Use one of %v or define the backend in %s", BuiltinTypes, c.Path),
	}
}

// BackendNames returns the configured backend names in sorted order.
func (c *Config) BackendNames() []string {
	if c.Definition == nil {
		return nil
	}
	names := make([]string, 0, len(c.Definition.Backends))
	for name := range c.Definition.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
