package floodgate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 10.0, cfg.Defaults.RequestsPerSecond)
	assert.Equal(t, int64(100), cfg.Defaults.BurstSize)
	assert.True(t, cfg.Defaults.Enabled)
	assert.Equal(t, "ip", cfg.KeyExtractor)

	idle, err := cfg.ParseIdleThreshold()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, idle)

	interval, err := cfg.ParseSweepInterval()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, interval)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
defaults:
  requests_per_second: 5.0
  burst_size: 50
  enabled: true

policies:
  "/api/login":
    requests_per_second: 0.5
    burst_size: 5
    enabled: true
  "/healthz":
    enabled: false

key_extractor: "header:X-API-Key"
idle_threshold: "30m"
sweep_interval: "2m"

login:
  max_attempts: 3
  attempt_window: "120s"
  lockout_duration: "10m"
`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Defaults.RequestsPerSecond)
	assert.Equal(t, int64(50), cfg.Defaults.BurstSize)
	assert.Equal(t, "header:X-API-Key", cfg.KeyExtractor)

	login := cfg.GetPolicy("/api/login")
	assert.Equal(t, 0.5, login.RequestsPerSecond)
	assert.Equal(t, int64(5), login.BurstSize)

	health := cfg.GetPolicy("/healthz")
	assert.False(t, health.Enabled)

	// Unknown routes fall back to the default policy.
	other := cfg.GetPolicy("/api/other")
	assert.Equal(t, cfg.Defaults, other)

	idle, err := cfg.ParseIdleThreshold()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, idle)

	require.NotNil(t, cfg.Login)
	assert.Equal(t, 3, cfg.Login.MaxAttempts)
}

func TestLoadConfigFromFileDefaultsApplied(t *testing.T) {
	path := writeConfigFile(t, `
defaults:
  requests_per_second: 5.0
  burst_size: 50
  enabled: true
`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ip", cfg.KeyExtractor)
	assert.Equal(t, "10m", cfg.IdleThreshold)
	assert.Equal(t, "1m", cfg.SweepInterval)
	assert.NotNil(t, cfg.Policies)
}

func TestLoadConfigFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "invalid yaml",
			content: `defaults: [not a map`,
		},
		{
			name: "zero rate",
			content: `
defaults:
  requests_per_second: 0
  burst_size: 50
  enabled: true
`,
		},
		{
			name: "zero burst",
			content: `
defaults:
  requests_per_second: 5.0
  burst_size: 0
  enabled: true
`,
		},
		{
			name: "bad route policy",
			content: `
defaults:
  requests_per_second: 5.0
  burst_size: 50
  enabled: true
policies:
  "/api/x":
    requests_per_second: -1
    burst_size: 5
    enabled: true
`,
		},
		{
			name: "bad idle threshold",
			content: `
defaults:
  requests_per_second: 5.0
  burst_size: 50
  enabled: true
idle_threshold: "soon"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := LoadConfigFromFile(path)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSetPolicy(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.SetPolicy("/api/x", PolicyConfig{
		RequestsPerSecond: 1, BurstSize: 5, Enabled: true,
	}))
	assert.Equal(t, int64(5), cfg.GetPolicy("/api/x").BurstSize)

	err := cfg.SetPolicy("/api/y", PolicyConfig{RequestsPerSecond: 0, BurstSize: 5, Enabled: true})
	require.ErrorIs(t, err, ErrInvalidConfig)

	// Disabled policies carry no limits to validate.
	require.NoError(t, cfg.SetPolicy("/healthz", PolicyConfig{Enabled: false}))
}

func TestParseDurations(t *testing.T) {
	cfg := NewConfig()

	cfg.IdleThreshold = "0"
	idle, err := cfg.ParseIdleThreshold()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), idle, "zero disables the sweep")

	cfg.IdleThreshold = "-5m"
	_, err = cfg.ParseIdleThreshold()
	require.ErrorIs(t, err, ErrInvalidConfig)

	cfg.SweepInterval = "90s"
	interval, err := cfg.ParseSweepInterval()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, interval)
}
