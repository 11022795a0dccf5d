package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blewatch/internal/advert"
	"github.com/srg/blewatch/internal/freshness"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Output formats
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Config holds application configuration
type Config struct {
	LogLevel            logrus.Level  `yaml:"log_level"`
	CurrentThreshold    time.Duration `yaml:"current_threshold" default:"60s"`
	MaxAgeThreshold     time.Duration `yaml:"max_age_threshold" default:"15m"`
	TargetService       string        `yaml:"target_service" default:"fd6f"`
	RefreshInterval     time.Duration `yaml:"refresh_interval" default:"1s"`
	PruneAfter          time.Duration `yaml:"prune_after"`
	EventBuffer         int           `yaml:"event_buffer" default:"256"`
	OutputFormat        string        `yaml:"output_format" default:"table"`
	StopScanOnPowerLoss bool          `yaml:"stop_scan_on_power_loss"`
}

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrInvalidConfig, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.LogLevel = logrus.InfoLevel
	return cfg
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses YAML on top of the defaults. Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if _, err := freshness.NewPolicy(c.CurrentThreshold, c.MaxAgeThreshold); err != nil {
		return &ValidationError{Field: "current_threshold", Err: err}
	}
	if c.RefreshInterval <= 0 {
		return &ValidationError{Field: "refresh_interval", Err: fmt.Errorf("must be positive, got %s", c.RefreshInterval)}
	}
	if c.EventBuffer <= 0 {
		return &ValidationError{Field: "event_buffer", Err: fmt.Errorf("must be positive, got %d", c.EventBuffer)}
	}
	if c.PruneAfter < 0 || (c.PruneAfter > 0 && c.PruneAfter < c.MaxAgeThreshold) {
		return &ValidationError{
			Field: "prune_after",
			Err:   fmt.Errorf("must be 0 or at least max_age_threshold (%s), got %s", c.MaxAgeThreshold, c.PruneAfter),
		}
	}
	switch c.OutputFormat {
	case FormatTable, FormatJSON:
	default:
		return &ValidationError{Field: "output_format", Err: fmt.Errorf("unknown format %q", c.OutputFormat)}
	}
	if c.TargetService != "" && advert.NormalizeUUID(c.TargetService) == "" {
		return &ValidationError{Field: "target_service", Err: fmt.Errorf("not a service UUID: %q", c.TargetService)}
	}
	return nil
}

// Policy returns the freshness policy for the configured thresholds.
func (c *Config) Policy() (freshness.Policy, error) {
	p, err := freshness.NewPolicy(c.CurrentThreshold, c.MaxAgeThreshold)
	if err != nil {
		return freshness.Policy{}, &ValidationError{Field: "current_threshold", Err: err}
	}
	return p, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
