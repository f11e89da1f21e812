package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  mode: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/chats.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.Model)
	assert.Equal(t, 120*time.Minute, cfg.Session.IdleTimeout())
	assert.Equal(t, time.Minute, cfg.Session.CleanupInterval())
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, 10*time.Minute, cfg.Database.Redis.CacheTTL())
	assert.Equal(t, 15*time.Minute, cfg.MinIO.ExportExpiry())
	assert.Equal(t, "data/weather_data.csv", cfg.Planner.WeatherCSVPath)
}

func TestLoadEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("TZAPPU_LLM_API_KEY", "sk-from-env")
	t.Setenv("TZAPPU_LLM_MODEL", "gpt-4o-mini")

	cfg, err := Load(writeConfig(t, "llm:\n  model: gpt-3.5-turbo\n  generation:\n    temperature: 0.7\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.InDelta(t, 0.7, cfg.LLM.Generation.Temperature, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRepoConfig(t *testing.T) {
	t.Setenv("TZAPPU_LLM_API_KEY", "")
	cfg, err := Load("../../configs/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 500, cfg.LLM.Generation.MaxTokens)
	assert.Empty(t, cfg.LLM.APIKey, "the credential never lives in the config file")
}
