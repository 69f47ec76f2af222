// Package config loads sentinel configuration from YAML with sensible
// defaults for every tunable: detection thresholds, retry budget, backoff
// curve, checkpoint TTLs, and the failure-type to strategy mapping.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DetectorConfig tunes the failure detector's thresholds. The values
// trade detection latency against false-positive risk and are deployment
// specific, never hard literals in the detector itself.
type DetectorConfig struct {
	// MaxSessionDuration is the per-session deadline; a session still
	// registered when it elapses raises a timeout failure.
	MaxSessionDuration time.Duration `yaml:"max_session_duration"`

	// APIErrorThreshold is the number of consecutive failed API calls
	// (status >= 400) that raises an api_error failure.
	APIErrorThreshold int `yaml:"api_error_threshold"`

	// EditLoopThreshold is the number of consecutive edits to one file
	// without passing tests that raises a loop failure.
	EditLoopThreshold int `yaml:"edit_loop_threshold"`
}

// RecoveryConfig tunes the recovery orchestrator.
type RecoveryConfig struct {
	// MaxRetries is the per-project retry budget before escalation.
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase seeds the exponential backoff between retry attempts.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// RateLimitBackoffBase seeds backoff for rate-limit-flavored
	// failures (HTTP 429/503), which need a longer initial wait.
	RateLimitBackoffBase time.Duration `yaml:"rate_limit_backoff_base"`

	// BackoffCap bounds any single backoff delay.
	BackoffCap time.Duration `yaml:"backoff_cap"`

	// Strategies maps a failure type to the recovery strategy chosen
	// while the retry budget lasts. Unknown failure types fall back to
	// "retry". Values: retry, checkpoint_recovery, context_refresh.
	Strategies map[string]string `yaml:"strategies"`

	// HistoryLimit bounds the per-project recovery log.
	HistoryLimit int `yaml:"history_limit"`
}

// CheckpointConfig tunes the durable checkpoint store.
type CheckpointConfig struct {
	// DBPath is the SQLite database path backing the store.
	DBPath string `yaml:"db_path"`

	// TTL bounds how long session histories and story pointers live.
	TTL time.Duration `yaml:"ttl"`
}

// Config is the root sentinel configuration.
type Config struct {
	// DataDir holds the checkpoint database and the instance lock.
	DataDir string `yaml:"data_dir"`

	// LogLevel sets logging verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// SignalStream is the JSONL file the process supervisor appends
	// lifecycle signals to; sentinel tails it.
	SignalStream string `yaml:"signal_stream"`

	// LaunchStream is the JSONL file sentinel appends replacement-session
	// launch requests to for the process supervisor to act on.
	LaunchStream string `yaml:"launch_stream"`

	Detector   DetectorConfig   `yaml:"detector"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// DefaultConfig returns a Config with the default thresholds.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      ".sentinel",
		LogLevel:     "info",
		SignalStream: ".sentinel/signals.jsonl",
		LaunchStream: ".sentinel/launches.jsonl",
		Detector: DetectorConfig{
			MaxSessionDuration: 2 * time.Hour,
			APIErrorThreshold:  5,
			EditLoopThreshold:  20,
		},
		Recovery: RecoveryConfig{
			MaxRetries:           3,
			BackoffBase:          2 * time.Second,
			RateLimitBackoffBase: 30 * time.Second,
			BackoffCap:           5 * time.Minute,
			Strategies: map[string]string{
				"crash":     "retry",
				"api_error": "retry",
				"stuck":     "checkpoint_recovery",
				"loop":      "checkpoint_recovery",
				"timeout":   "context_refresh",
			},
			HistoryLimit: 200,
		},
		Checkpoint: CheckpointConfig{
			DBPath: ".sentinel/checkpoints.db",
			TTL:    7 * 24 * time.Hour,
		},
	}
}

// LoadConfig loads configuration from path, layered over defaults.
// A missing file returns defaults without error; a malformed file is an
// error. Duration fields use Go duration syntax ("2h", "30s").
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every tunable is in a usable range.
func (c *Config) Validate() error {
	if c.Detector.MaxSessionDuration <= 0 {
		return fmt.Errorf("detector.max_session_duration must be positive, got %v", c.Detector.MaxSessionDuration)
	}
	if c.Detector.APIErrorThreshold < 1 {
		return fmt.Errorf("detector.api_error_threshold must be at least 1, got %d", c.Detector.APIErrorThreshold)
	}
	if c.Detector.EditLoopThreshold < 1 {
		return fmt.Errorf("detector.edit_loop_threshold must be at least 1, got %d", c.Detector.EditLoopThreshold)
	}
	if c.Recovery.MaxRetries < 0 {
		return fmt.Errorf("recovery.max_retries must not be negative, got %d", c.Recovery.MaxRetries)
	}
	if c.Recovery.BackoffBase <= 0 {
		return fmt.Errorf("recovery.backoff_base must be positive, got %v", c.Recovery.BackoffBase)
	}
	if c.Recovery.BackoffCap < c.Recovery.BackoffBase {
		return fmt.Errorf("recovery.backoff_cap %v is below recovery.backoff_base %v", c.Recovery.BackoffCap, c.Recovery.BackoffBase)
	}
	if c.Checkpoint.TTL <= 0 {
		return fmt.Errorf("checkpoint.ttl must be positive, got %v", c.Checkpoint.TTL)
	}
	for failureType, strategy := range c.Recovery.Strategies {
		switch strategy {
		case "retry", "checkpoint_recovery", "context_refresh":
		default:
			return fmt.Errorf("recovery.strategies[%s]: unknown strategy %q", failureType, strategy)
		}
	}
	return nil
}
