package config

import "collapse/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"` // debug, info, warn, error
	Format     string          `yaml:"format" validate:"omitempty,oneof=json text"`
	DebugMode  bool            `yaml:"debug_mode"` // Master toggle - false = no logging (production)
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"` // Per-category toggles
}

// ApplyLevel pushes the resolved level (config file, then COLLAPSE_LOG_LEVEL)
// to the category file loggers.
func (c *LoggingConfig) ApplyLevel() {
	if c.Level != "" {
		logging.SetLevel(c.Level)
	}
}
