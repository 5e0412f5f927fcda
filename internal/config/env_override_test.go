package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collapse/internal/logging"
)

func TestEnvOverrides(t *testing.T) {
	t.Run("COLLAPSE_DB sets database path", func(t *testing.T) {
		t.Setenv("COLLAPSE_DB", "/tmp/runs.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/runs.db", cfg.Store.DatabasePath)
	})

	t.Run("COLLAPSE_ARTIFACTS_DIR sets artifacts dir", func(t *testing.T) {
		t.Setenv("COLLAPSE_ARTIFACTS_DIR", "out")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "out", cfg.Export.ArtifactsDir)
	})

	t.Run("COLLAPSE_LOG_LEVEL sets level", func(t *testing.T) {
		t.Setenv("COLLAPSE_LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("COLLAPSE_LOG_LEVEL reaches the file loggers", func(t *testing.T) {
		t.Setenv("COLLAPSE_LOG_LEVEL", "warn")
		t.Cleanup(func() { logging.SetLevel("info") })

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		cfg.Logging.ApplyLevel()

		assert.Equal(t, "warn", logging.Level())
	})

	t.Run("empty env leaves values alone", func(t *testing.T) {
		t.Setenv("COLLAPSE_DB", "")
		t.Setenv("COLLAPSE_ARTIFACTS_DIR", "")
		t.Setenv("COLLAPSE_LOG_LEVEL", "")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		require.Equal(t, DefaultConfig().Store.DatabasePath, cfg.Store.DatabasePath)
		assert.Equal(t, "artifacts", cfg.Export.ArtifactsDir)
		assert.Equal(t, "info", cfg.Logging.Level)
	})
}
