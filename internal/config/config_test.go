package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 15*time.Minute, cfg.Grabber.StaleAfter)
	assert.True(t, cfg.SourceEnabled("nbu"))
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  port: 9090
  read_timeout: 5s
log:
  level: debug
storage:
  in_memory: true
grabber:
  stale_after: 1m
sources:
  nbu:
    enabled: true
    destination_currency_codes: [USD, EUR]
  alfabank:
    enabled: false
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))

	cfg, err := LoadConfig(dir)

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, time.Minute, cfg.Grabber.StaleAfter)
	assert.Equal(t, []string{"USD", "EUR"}, cfg.Sources["nbu"].DestinationCurrencyCodes)
	assert.True(t, cfg.SourceEnabled("nbu"))
	assert.False(t, cfg.SourceEnabled("alfabank"))
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("GRABBER_SERVER_PORT", "7070")
	t.Setenv("GRABBER_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: -1\n"), 0o600))

	_, err := LoadConfig(dir)

	assert.Error(t, err)
}
