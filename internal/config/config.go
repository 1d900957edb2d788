// Package config loads the client configuration for the streamkit CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk client configuration.
type Config struct {
	// BackendURL is the agent backend origin.
	BackendURL string `yaml:"backend_url"`

	// Provider and Model are the default generation selection.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// AuthToken is the ambient bearer credential, if any.
	AuthToken string `yaml:"auth_token,omitempty"`

	// StateDir holds the local state database. Defaults under the config dir.
	StateDir string `yaml:"state_dir,omitempty"`

	// LogFile enables rotated file logging when set.
	LogFile string `yaml:"log_file,omitempty"`

	// MetricsEnabled turns on the stdout metrics exporter.
	MetricsEnabled bool `yaml:"metrics_enabled,omitempty"`
}

// Option configures loading.
type Option func(*loader)

type loader struct {
	configDir string
}

// WithConfigDir overrides the default ~/.streamkit directory.
func WithConfigDir(dir string) Option {
	return func(l *loader) { l.configDir = dir }
}

// DefaultConfigDir returns ~/.streamkit.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".streamkit"), nil
}

// Load reads the configuration file, creating the config directory when
// missing. A missing file yields defaults rather than an error.
func Load(opts ...Option) (*Config, error) {
	l := &loader{}
	for _, opt := range opts {
		opt(l)
	}

	if l.configDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		l.configDir = dir
	}

	if err := os.MkdirAll(l.configDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := &Config{
		BackendURL: "http://localhost:8787",
		Provider:   "anthropic",
		Model:      "claude-sonnet-4-5",
	}

	path := filepath.Join(l.configDir, "config.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.StateDir = l.configDir
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.StateDir == "" {
		cfg.StateDir = l.configDir
	}
	return cfg, nil
}

// StateDBPath returns the path of the local state database.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.StateDir, "state.db")
}
