package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	want := DefaultConfig()
	assert.Equal(t, want, cfg)
	assert.Equal(t, 2*time.Second, cfg.Query.Budget())
	require.NoError(t, cfg.Validate())
}

func TestLoad_WorkspaceFileOverridesDefaults(t *testing.T) {
	t.Parallel()
	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".atlas"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".atlas", "config.yaml"), []byte(
		"log:\n  level: debug\nquery:\n  max_depth: 6\nindex:\n  parallel: false\n"), 0o644))

	cfg, err := Load("", ws)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 6, cfg.Query.MaxDepth)
	assert.False(t, cfg.Index.Parallel)
	assert.Equal(t, 20, cfg.Query.ConceptLimit)
}

func TestLoad_ExplicitJSONFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "atlas.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"cache_dir": "/tmp/atlas-cache", "query": {"budget_ms": 150}}`), 0o644))

	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/atlas-cache", cfg.CacheDir)
	assert.Equal(t, 150*time.Millisecond, cfg.Query.Budget())
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	t.Setenv("ATLAS_QUERY_BUDGET_MS", "75")
	t.Setenv("ATLAS_LOG_FORMAT", "json")

	cfg, err := Load("", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Query.BudgetMS)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative depth", func(c *Config) { c.Query.MaxDepth = -1 }, "query.max_depth"},
		{"negative workers", func(c *Config) { c.Index.Workers = -2 }, "index.workers"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"empty cache", func(c *Config) { c.CacheDir = "" }, "cache_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}
