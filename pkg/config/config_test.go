package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blewatch/internal/freshness"
	"github.com/srg/blewatch/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.CurrentThreshold)
	assert.Equal(t, 15*time.Minute, cfg.MaxAgeThreshold)
	assert.Equal(t, "fd6f", cfg.TargetService)
	assert.Equal(t, time.Second, cfg.RefreshInterval)
	assert.Zero(t, cfg.PruneAfter)
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.Equal(t, FormatTable, cfg.OutputFormat)
	assert.False(t, cfg.StopScanOnPowerLoss)
	require.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	for _, level := range []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel} {
		t.Run(level.String(), func(t *testing.T) {
			cfg := &Config{LogLevel: level}

			logger := cfg.NewLogger()

			assert.Equal(t, level, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
		cause  error
	}{
		{
			name:   "current above max age",
			mutate: func(c *Config) { c.CurrentThreshold, c.MaxAgeThreshold = 100*time.Second, 50*time.Second },
			field:  "current_threshold",
			cause:  freshness.ErrInvalidThresholds,
		},
		{
			name:   "zero current threshold",
			mutate: func(c *Config) { c.CurrentThreshold = 0 },
			field:  "current_threshold",
			cause:  freshness.ErrInvalidThresholds,
		},
		{
			name:   "zero refresh interval",
			mutate: func(c *Config) { c.RefreshInterval = 0 },
			field:  "refresh_interval",
		},
		{
			name:   "zero event buffer",
			mutate: func(c *Config) { c.EventBuffer = 0 },
			field:  "event_buffer",
		},
		{
			name:   "prune before expiry",
			mutate: func(c *Config) { c.PruneAfter = time.Minute },
			field:  "prune_after",
		},
		{
			name:   "unknown format",
			mutate: func(c *Config) { c.OutputFormat = "xml" },
			field:  "output_format",
		},
		{
			name:   "bad target service",
			mutate: func(c *Config) { c.TargetService = "not-a-uuid" },
			field:  "target_service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestConfig_ValidateAccepts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PruneAfter = time.Hour
	cfg.TargetService = ""
	cfg.OutputFormat = FormatJSON
	cfg.CurrentThreshold = cfg.MaxAgeThreshold

	assert.NoError(t, cfg.Validate())
}

func TestConfig_Policy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CurrentThreshold = 30 * time.Second

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, p.CurrentThreshold())
	assert.Equal(t, 15*time.Minute, p.MaxAgeThreshold())

	cfg.CurrentThreshold = 100 * time.Second
	cfg.MaxAgeThreshold = 50 * time.Second
	_, err = cfg.Policy()
	assert.ErrorIs(t, err, freshness.ErrInvalidThresholds)
}

func TestLoad(t *testing.T) {
	path := testutils.WriteTempFile(t, "blewatch.yaml", `
log_level: debug
current_threshold: 30s
max_age_threshold: 5m
target_service: 0000FD6F-0000-1000-8000-00805F9B34FB
output_format: json
stop_scan_on_power_loss: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.CurrentThreshold)
	assert.Equal(t, 5*time.Minute, cfg.MaxAgeThreshold)
	assert.Equal(t, FormatJSON, cfg.OutputFormat)
	assert.True(t, cfg.StopScanOnPowerLoss)
	// untouched keys keep their defaults
	assert.Equal(t, time.Second, cfg.RefreshInterval)
	assert.Equal(t, 256, cfg.EventBuffer)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/blewatch.yaml")
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		path := testutils.WriteTempFile(t, "c.yaml", "refresh: 1s\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refresh")
	})

	t.Run("inverted thresholds", func(t *testing.T) {
		path := testutils.WriteTempFile(t, "c.yaml", "current_threshold: 100s\nmax_age_threshold: 50s\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorIs(t, err, freshness.ErrInvalidThresholds)
	})
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader("\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
