package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// clientSecretEnvVar overrides token_exchange.client_secret when set.
const clientSecretEnvVar = "MCPGATE_CLIENT_SECRET"

// Loader loads configuration from a source.
type Loader interface {
	// Load loads configuration from the source.
	Load() (*Config, error)
}

// YAMLLoader loads configuration from a YAML file.
type YAMLLoader struct {
	path string

	// getenv is swappable for tests.
	getenv func(string) string
}

// NewYAMLLoader creates a loader for the given config file path.
func NewYAMLLoader(path string) *YAMLLoader {
	return &YAMLLoader{
		path:   path,
		getenv: os.Getenv,
	}
}

// Load reads and parses the config file, rejects unknown fields, applies the
// environment secret override, and fills in defaults. It does not validate;
// call Config.Validate separately.
func (l *YAMLLoader) Load() (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(l.path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}

	if secret := l.getenv(clientSecretEnvVar); secret != "" {
		cfg.TokenExchange.ClientSecret = secret
	}

	cfg.applyDefaults()
	return &cfg, nil
}
