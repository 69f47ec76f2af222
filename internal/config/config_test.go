package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 2*time.Hour, cfg.Detector.MaxSessionDuration)
	assert.Equal(t, 5, cfg.Detector.APIErrorThreshold)
	assert.Equal(t, 20, cfg.Detector.EditLoopThreshold)
	assert.Equal(t, 3, cfg.Recovery.MaxRetries)
	assert.Equal(t, 7*24*time.Hour, cfg.Checkpoint.TTL)
	assert.Equal(t, "checkpoint_recovery", cfg.Recovery.Strategies["stuck"])
	assert.Equal(t, "retry", cfg.Recovery.Strategies["crash"])
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Detector, cfg.Detector)
}

func TestLoadConfig_OverridesLayeredOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	content := `
log_level: debug
detector:
  max_session_duration: 30m
  api_error_threshold: 3
recovery:
  max_retries: 5
  strategies:
    crash: checkpoint_recovery
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Minute, cfg.Detector.MaxSessionDuration)
	assert.Equal(t, 3, cfg.Detector.APIErrorThreshold)
	// Unset fields keep their defaults.
	assert.Equal(t, 20, cfg.Detector.EditLoopThreshold)
	assert.Equal(t, 5, cfg.Recovery.MaxRetries)
	assert.Equal(t, "checkpoint_recovery", cfg.Recovery.Strategies["crash"])
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detector: ["), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero session duration",
			mutate:  func(c *Config) { c.Detector.MaxSessionDuration = 0 },
			wantErr: "max_session_duration",
		},
		{
			name:    "zero api threshold",
			mutate:  func(c *Config) { c.Detector.APIErrorThreshold = 0 },
			wantErr: "api_error_threshold",
		},
		{
			name:    "zero loop threshold",
			mutate:  func(c *Config) { c.Detector.EditLoopThreshold = 0 },
			wantErr: "edit_loop_threshold",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Recovery.MaxRetries = -1 },
			wantErr: "max_retries",
		},
		{
			name:    "cap below base",
			mutate:  func(c *Config) { c.Recovery.BackoffCap = time.Millisecond },
			wantErr: "backoff_cap",
		},
		{
			name:    "unknown strategy",
			mutate:  func(c *Config) { c.Recovery.Strategies["crash"] = "pray" },
			wantErr: "unknown strategy",
		},
		{
			name:    "zero ttl",
			mutate:  func(c *Config) { c.Checkpoint.TTL = 0 },
			wantErr: "ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
