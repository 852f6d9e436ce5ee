package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	// Run from an empty dir so a developer's config.yaml never leaks in.
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(orig) }) //nolint:errcheck
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "adscope.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 30, cfg.HTTP.TimeoutSecs)
	assert.Equal(t, 500, cfg.HTTP.MinIntervalMs)
	assert.Equal(t, 4, cfg.Scrape.Concurrency)
	assert.Equal(t, 100, cfg.Scrape.MaxPages)
	assert.Equal(t, 5, cfg.Scrape.Retry.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ADSCOPE_SCRAPE_MAX_PAGES", "25")
	t.Setenv("ADSCOPE_STORE_DRIVER", "postgres")
	t.Setenv("ADSCOPE_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Scrape.MaxPages)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	chdirTemp(t)
	yaml := "scrape:\n  concurrency: 9\nhttp:\n  user_agent: custom-agent/2.0\n"
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Scrape.Concurrency)
	assert.Equal(t, "custom-agent/2.0", cfg.HTTP.UserAgent)
	assert.Equal(t, 100, cfg.Scrape.MaxPages, "unspecified keys keep defaults")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "shouting", Format: "json"}))
}
