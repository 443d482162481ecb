// Package config holds ouro's yaml-backed configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ouro configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Generative code service
	Service ServiceConfig `yaml:"service"`

	// Snapshot persistence
	Store StoreConfig `yaml:"store"`

	// Bootstrap chain
	Boot BootConfig `yaml:"boot"`

	// Live preview bundling executor
	Preview PreviewConfig `yaml:"preview"`

	// Disk mirror for external editors
	Mirror MirrorConfig `yaml:"mirror"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig configures the external generative code service.
type ServiceConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"`
}

// TimeoutDuration parses the service timeout, falling back to two minutes.
func (c ServiceConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// BootConfig configures the staged bootstrap chain.
type BootConfig struct {
	OSEntry        string `yaml:"os_entry"`
	AppEntry       string `yaml:"app_entry"`
	RecompileDelay string `yaml:"recompile_delay"`
}

// RecompileDelayDuration parses the recompile debounce delay. The delay
// exists only to let pending output flush before a long synchronous pass.
func (c BootConfig) RecompileDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.RecompileDelay)
	if err != nil || d < 0 {
		return 50 * time.Millisecond
	}
	return d
}

// PreviewConfig configures the bundling executor.
type PreviewConfig struct {
	Entry        string   `yaml:"entry"`
	Timeout      string   `yaml:"timeout"`
	Capabilities []string `yaml:"capabilities"`
}

// TimeoutDuration parses the preview execution budget.
func (c PreviewConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// MirrorConfig configures the disk mirror.
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ouro",
		Version: "0.3.0",

		Service: ServiceConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "2m",
		},

		Store: StoreConfig{
			DatabasePath: ".ouro/tree.db",
		},

		Boot: BootConfig{
			OSEntry:        "/boot/os.go",
			AppEntry:       "/boot/app.go",
			RecompileDelay: "50ms",
		},

		Preview: PreviewConfig{
			Entry:        "/boot/app.go",
			Timeout:      "5s",
			Capabilities: []string{"log"},
		},

		Mirror: MirrorConfig{
			Enabled:   false,
			Directory: ".ouro/tree",
		},

		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load reads configuration from the given workspace. Missing file is not
// an error: defaults apply. Environment overrides win over the file.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	path := filepath.Join(workspace, ".ouro", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets the environment supply secrets that do not belong
// in the config file.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Service.APIKey = key
	} else if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.Service.APIKey == "" {
		c.Service.APIKey = key
	}
	if model := os.Getenv("OURO_MODEL"); model != "" {
		c.Service.Model = model
	}
}

// Save writes the configuration back to the workspace.
func (c *Config) Save(workspace string) error {
	dir := filepath.Join(workspace, ".ouro")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644)
}
