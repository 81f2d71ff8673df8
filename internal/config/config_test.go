package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(500), cfg.Processing.MaxLatencyDeltaMs)
	assert.Equal(t, "lockstep", cfg.Processing.JoinStrategy)
	assert.False(t, cfg.Processing.EnableExecution)
	assert.Equal(t, 2.5, cfg.Detector.ZScoreThreshold)
	assert.Equal(t, 0.005, cfg.Detector.MinEdgePercent)
	assert.Equal(t, 5.0, cfg.Risk.MaxTailRisk)
	assert.Equal(t, 120, cfg.Covariance.WindowSize)
	assert.Equal(t, 30, cfg.Covariance.MinSamples)
	assert.Empty(t, cfg.Replay.GameID)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("PROCESSING_JOIN_STRATEGY", "buffered")
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "buffered", cfg.Processing.JoinStrategy)
	assert.Equal(t, "test-token", cfg.Telegram.BotToken)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Processing: ProcessingConfig{
				MaxLatencyDeltaMs: 500,
				MinConfidence:     0.7,
				MinCorrelation:    0.7,
				JoinStrategy:      "lockstep",
			},
			Covariance: CovarianceConfig{WindowSize: 120, MinSamples: 30},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(c *Config) {},
		},
		{
			name:    "non-positive latency tolerance",
			mutate:  func(c *Config) { c.Processing.MaxLatencyDeltaMs = 0 },
			wantErr: "max_latency_delta_ms",
		},
		{
			name:    "confidence out of range",
			mutate:  func(c *Config) { c.Processing.MinConfidence = 1.5 },
			wantErr: "min_confidence",
		},
		{
			name:    "correlation out of range",
			mutate:  func(c *Config) { c.Processing.MinCorrelation = -0.1 },
			wantErr: "min_correlation",
		},
		{
			name:    "unknown join strategy",
			mutate:  func(c *Config) { c.Processing.JoinStrategy = "zipper" },
			wantErr: "join_strategy",
		},
		{
			name:    "window smaller than minimum samples",
			mutate:  func(c *Config) { c.Covariance.WindowSize = 10 },
			wantErr: "window_size",
		},
		{
			name:    "too few minimum samples",
			mutate:  func(c *Config) { c.Covariance.MinSamples = 1; c.Covariance.WindowSize = 1 },
			wantErr: "min_samples",
		},
		{
			name:    "replay without markets",
			mutate:  func(c *Config) { c.Replay.GameID = "game-1" },
			wantErr: "replay.primary_market",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := &Config{
		Processing: ProcessingConfig{
			MaxPositionSize:         25000,
			ExecutionTimeoutSeconds: 7,
		},
	}

	assert.Equal(t, "25000", cfg.MaxPositionSizeDecimal().String())
	assert.Equal(t, 7*time.Second, cfg.ExecutionTimeout())
}
