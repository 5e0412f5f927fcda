package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var configValidate = validator.New()

// Config holds all collapse configuration.
type Config struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version"`

	// Engine behavior
	Engine EngineConfig `yaml:"engine"`

	// Selector preference table overrides
	Ranker RankerConfig `yaml:"ranker"`

	// Mangle fact store used by fact and rule kernels
	Facts FactsConfig `yaml:"facts"`

	// Run history
	Store StoreConfig `yaml:"store"`

	// Trace and ledger artifacts
	Export ExportConfig `yaml:"export"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig configures the collapse engine.
type EngineConfig struct {
	// StrictContext validates that every kernel's declared reads are populated
	// before the first step runs.
	StrictContext bool `yaml:"strict_context"`
}

// RankerConfig configures the Ψ preference table.
type RankerConfig struct {
	// Preferences are merged onto the default table; unknown tokens score 0.
	Preferences map[string]float64 `yaml:"preferences" validate:"dive,gte=0"`
}

// FactsConfig configures the Mangle fact store.
type FactsConfig struct {
	FactLimit    int    `yaml:"fact_limit" validate:"gte=0"`
	QueryTimeout string `yaml:"query_timeout"`
}

// StoreConfig configures SQLite run history.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path" validate:"required_if=Enabled true"`
}

// ExportConfig configures artifact output.
type ExportConfig struct {
	ArtifactsDir string   `yaml:"artifacts_dir" validate:"required"`
	Formats      []string `yaml:"formats" validate:"dive,oneof=csv json mangle"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "collapse",
		Version: "0.3.0",

		Engine: EngineConfig{
			StrictContext: true,
		},

		Ranker: RankerConfig{
			Preferences: map[string]float64{},
		},

		Facts: FactsConfig{
			FactLimit:    10000,
			QueryTimeout: "5s",
		},

		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: ".collapse/runs.db",
		},

		Export: ExportConfig{
			ArtifactsDir: "artifacts",
			Formats:      []string{"csv"},
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config path inside a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".collapse", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("COLLAPSE_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if dir := os.Getenv("COLLAPSE_ARTIFACTS_DIR"); dir != "" {
		c.Export.ArtifactsDir = dir
	}
	if level := os.Getenv("COLLAPSE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// GetQueryTimeout returns the Mangle query timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Facts.QueryTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.ParseDuration(c.Facts.QueryTimeout); c.Facts.QueryTimeout != "" && err != nil {
		return fmt.Errorf("invalid config: facts.query_timeout %q: %w", c.Facts.QueryTimeout, err)
	}
	return nil
}
