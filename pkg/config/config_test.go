package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 0.8, cfg.Manual.DuplicateThreshold)
	assert.Equal(t, "usage", cfg.Manual.PrioritizeBy)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
manual:
  id: prod-manual
  duplicate_threshold: 0.9
  prioritize_by: confidence
llm:
  provider: anthropic
  model: claude-sonnet-4-5
  max_tokens: 1000
storage:
  path: /tmp/ace.db
  keep_versions: 5
logging:
  level: DEBUG
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "prod-manual", cfg.Manual.ID)
		assert.Equal(t, 0.9, cfg.Manual.DuplicateThreshold)
		assert.Equal(t, "confidence", cfg.Manual.PrioritizeBy)
		assert.Equal(t, 1000, cfg.LLM.MaxTokens)
		assert.Equal(t, 5, cfg.Storage.KeepVersions)
		assert.Equal(t, "DEBUG", cfg.Logging.Level)
	})

	t.Run("omitted fields get defaults", func(t *testing.T) {
		path := writeConfig(t, `
manual:
  id: sparse
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 0.8, cfg.Manual.DuplicateThreshold)
		assert.Equal(t, "usage", cfg.Manual.PrioritizeBy)
		assert.Equal(t, 2000, cfg.LLM.MaxTokens)
		assert.Equal(t, "INFO", cfg.Logging.Level)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := writeConfig(t, `
manual:
  prioritize_by: popularity
`)
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("threshold above one is rejected", func(t *testing.T) {
		path := writeConfig(t, `
manual:
  duplicate_threshold: 1.5
`)
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "manual: [broken")
		_, err := Load(path)
		require.Error(t, err)
	})
}
