package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, 8*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, uint64(30), cfg.AutonomousCadence)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AGENTICREALM_TICK_INTERVAL", "250ms")
	t.Setenv("AGENTICREALM_DISPATCH_TIMEOUT", "2s")
	t.Setenv("AGENTICREALM_AUTONOMOUS_CADENCE", "5")
	t.Setenv("AGENTICREALM_DB_PATH", "/tmp/realm.db")
	t.Setenv("AGENTICREALM_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, uint64(5), cfg.AutonomousCadence)
	assert.Equal(t, "/tmp/realm.db", cfg.DatabasePath)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("AGENTICREALM_TICK_INTERVAL", "0s")
	_, err := Load()
	assert.ErrorContains(t, err, "tick interval")
}

func TestValidate(t *testing.T) {
	cfg := &Config{TickInterval: time.Second, DispatchTimeout: 8 * time.Second, LogFormat: "text"}
	assert.NoError(t, cfg.Validate())

	cfg.LogFormat = "yaml"
	assert.ErrorContains(t, cfg.Validate(), "unknown log format")

	cfg.LogFormat = "json"
	cfg.DispatchTimeout = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "dispatch timeout")
}
